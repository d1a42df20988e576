// Package tree implements a minimal in-memory file tree satisfying
// ninesrv.FileTree/FileNode/DirReader. It exists to give the engine a
// real, testable backing store: the in-memory file-tree library itself
// is an external collaborator (spec.md §1), but a concrete instance is
// needed to exercise and test walk/open/read/write/create/remove end to
// end rather than only against mocks.
package tree

import (
	"sync"

	"github.com/ninepfs/ninesrv"
	"github.com/ninepfs/ninesrv/wire"
)

// Tree is an in-memory directory hierarchy rooted at Root.
type Tree struct {
	root *Node
}

// New creates an empty Tree whose root directory is owned by uid.
func New(uid string) *Tree {
	t := &Tree{}
	t.root = &Node{
		tree:     t,
		name:     "/",
		dir:      true,
		children: map[string]*Node{},
		uid:      uid,
		gid:      uid,
		mode:     0777,
	}
	t.root.qid = t.root.newQid(wire.QTDIR)
	return t
}

// Root implements ninesrv.FileTree.
func (t *Tree) Root() ninesrv.FileNode { return t.root }

var (
	_ ninesrv.FileTree = (*Tree)(nil)
	_ ninesrv.FileNode = (*Node)(nil)
	_ ninesrv.DirReader = (*dirReader)(nil)
)

var nextPath struct {
	mu sync.Mutex
	n  uint64
}

func allocPath() uint64 {
	nextPath.mu.Lock()
	defer nextPath.mu.Unlock()
	nextPath.n++
	return nextPath.n
}

// Node is a single file or directory. Directories hold their children
// in a map guarded by mu; plain files hold their content as a byte
// slice guarded by the same lock.
type Node struct {
	tree   *Tree
	parent *Node

	mu sync.RWMutex

	name string
	dir  bool
	uid  string
	gid  string
	mode uint32

	qid     wire.Qid
	content []byte

	children map[string]*Node
}

func (n *Node) newQid(typ uint8) wire.Qid {
	return wire.Qid{Path: allocPath(), Vers: 0, Type: typ}
}

// Qid implements ninesrv.FileNode.
func (n *Node) Qid() wire.Qid {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.qid
}

// Walk implements ninesrv.FileNode.
func (n *Node) Walk(name string) (ninesrv.FileNode, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.dir {
		return nil, errNotDir
	}
	if name == ".." {
		if n.parent != nil {
			return n.parent, nil
		}
		return n, nil
	}
	child, ok := n.children[name]
	if !ok {
		return nil, errNotFound
	}
	return child, nil
}

// HasPerm implements ninesrv.FileNode with a simple owner/other split:
// the owning uid gets the mode's upper (owner) three bits, anyone else
// gets the mode's lower (other) three bits.
func (n *Node) HasPerm(uid string, want ninesrv.Perm) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	bits := n.mode & 0007
	if uid == n.uid {
		bits = (n.mode >> 6) & 0007
	}
	return uint32(want)&bits == uint32(want)
}

// DirWritable implements ninesrv.FileNode by checking write permission
// on the node's parent directory.
func (n *Node) DirWritable(uid string) bool {
	n.mu.RLock()
	parent := n.parent
	n.mu.RUnlock()
	if parent == nil {
		return false
	}
	return parent.HasPerm(uid, wire.AWRITE)
}

// Open implements ninesrv.FileNode. Opening with OTRUNC truncates a
// plain file's content.
func (n *Node) Open(uid string, omode uint8) error {
	if omode&uint8(wire.OTRUNC) != 0 {
		n.mu.Lock()
		if !n.dir {
			n.content = nil
		}
		n.mu.Unlock()
	}
	return nil
}

// OpenDir implements ninesrv.FileNode.
func (n *Node) OpenDir() (ninesrv.DirReader, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.dir {
		return nil, errNotDir
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	entries := make([]wire.Dir, 0, len(names))
	for _, name := range names {
		entries = append(entries, n.children[name].Stat())
	}
	return &dirReader{entries: entries}, nil
}

// Create implements ninesrv.FileNode.
func (n *Node) Create(uid, name string, perm uint32, omode uint8) (ninesrv.FileNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.dir {
		return nil, errNotDir
	}
	if _, exists := n.children[name]; exists {
		return nil, errExists
	}

	child := &Node{
		tree:   n.tree,
		parent: n,
		name:   name,
		uid:    uid,
		gid:    n.gid,
		mode:   perm &^ uint32(wire.DMDIR),
	}
	typ := uint8(0)
	if perm&uint32(wire.DMDIR) != 0 {
		child.dir = true
		child.children = map[string]*Node{}
		typ = wire.QTDIR
	}
	child.qid = child.newQid(typ)
	n.children[name] = child
	return child, nil
}

// Remove implements ninesrv.FileNode.
func (n *Node) Remove(uid string) error {
	n.mu.RLock()
	parent := n.parent
	name := n.name
	n.mu.RUnlock()
	if parent == nil {
		return errPermission
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if child, ok := parent.children[name]; !ok || child != n {
		return errNotFound
	}
	delete(parent.children, name)
	return nil
}

// Stat implements ninesrv.FileNode.
func (n *Node) Stat() wire.Dir {
	n.mu.RLock()
	defer n.mu.RUnlock()
	mode := n.mode
	if n.dir {
		mode |= uint32(wire.DMDIR)
	}
	return wire.Dir{
		Qid:    n.qid,
		Mode:   mode,
		Length: uint64(len(n.content)),
		Name:   n.name,
		Uid:    n.uid,
		Gid:    n.gid,
		Muid:   n.uid,
	}
}

// Wstat implements ninesrv.FileNode, applying only the name and mode,
// and skipping each when it carries wstat's "don't touch" value (an
// empty name, a mode of wire.NoTouchMode).
func (n *Node) Wstat(d wire.Dir) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d.Name != "" {
		n.name = d.Name
	}
	if d.Mode != 0xFFFFFFFF {
		n.mode = d.Mode &^ uint32(wire.DMDIR)
	}
	return nil
}

// ReadAt implements ninesrv.FileNode.
func (n *Node) ReadAt(p []byte, off int64) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if off >= int64(len(n.content)) {
		return 0, nil
	}
	return copy(p, n.content[off:]), nil
}

// WriteAt implements ninesrv.FileNode, growing content as needed.
func (n *Node) WriteAt(p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(n.content)) {
		grown := make([]byte, end)
		copy(grown, n.content)
		n.content = grown
	}
	return copy(n.content[off:end], p), nil
}

// IncVersion implements ninesrv.FileNode.
func (n *Node) IncVersion() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.qid.Vers++
}

type dirReader struct {
	entries []wire.Dir
}

// ReadDir implements ninesrv.DirReader by re-encoding the directory's
// already-snapshotted entries starting at the given byte offset. It
// returns only whole stat records that fit in count.
func (d *dirReader) ReadDir(offset uint64, count int) ([]byte, error) {
	var out []byte
	var pos uint64
	for _, e := range d.entries {
		rec := wire.EncodeStat(e)
		if pos >= offset {
			if len(out)+len(rec) > count {
				break
			}
			out = append(out, rec...)
		}
		pos += uint64(len(rec))
	}
	return out, nil
}
