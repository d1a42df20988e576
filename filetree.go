package ninesrv

import "github.com/ninepfs/ninesrv/wire"

// Perm is the permission bitmask checked by FileNode.HasPerm: some
// combination of AREAD, AWRITE, AEXEC (spec.md §6).
type Perm = uint8

// FileTree is the in-memory (or real) file-tree library spec.md
// declares out of scope (spec.md §1). The engine only ever calls
// Root; everything else is reached by walking from the node it
// returns.
type FileTree interface {
	Root() FileNode
}

// FileNode is a single node (file or directory) in a FileTree. The
// engine calls these methods directly from the T-handlers described in
// spec.md §4.3; none of them are expected to block for long, since by
// default they run with the dispatch lock held (spec.md §5) unless the
// caller uses Srv.Acquire/Release around a slow one.
type FileNode interface {
	// Qid returns this node's current identity.
	Qid() wire.Qid

	// Walk steps from this node to the child named name. A returned
	// error ends the walk; its text is not sent to the client, and a
	// walk that resolves no name at all is answered with
	// ErrFileNotFound.
	Walk(name string) (FileNode, error)

	// HasPerm reports whether uid has the requested permission bits on
	// this node.
	HasPerm(uid string, want Perm) bool

	// DirWritable reports whether uid can modify this node's parent
	// directory (required for ORCLOSE opens and for remove).
	DirWritable(uid string) bool

	// Open validates (and performs any node-side bookkeeping for)
	// opening this node with the given 9P open mode. omode is one of
	// the wire.O* flag combinations.
	Open(uid string, omode uint8) error

	// OpenDir returns a directory-read iterator. Only called for nodes
	// whose Qid has the QTDIR bit set.
	OpenDir() (DirReader, error)

	// Create makes a new child node named name with the given
	// permission bits and open mode, already open on return.
	Create(uid, name string, perm uint32, omode uint8) (FileNode, error)

	// Remove deletes this node from its parent.
	Remove(uid string) error

	// Stat snapshots this node's metadata.
	Stat() wire.Dir

	// Wstat applies a (partially filled) Dir to this node. The T-wstat
	// handler checks the qid and mode constraints but does not filter
	// the Dir: fields the client left alone still carry the wstat
	// "don't touch" values (wire.NoTouch*, or an empty string).
	Wstat(d wire.Dir) error

	// ReadAt/WriteAt serve Tread/Twrite for non-directory nodes.
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)

	// IncVersion bumps this node's Qid.Vers, called by the T-write
	// finalizer after a successful write (spec.md §4.3, rwrite).
	IncVersion()
}

// DirReader streams a directory's entries already encoded as stat
// records, honoring the monotonic offset contract T-read enforces for
// directory fids (spec.md §4.3, sread/rread).
type DirReader interface {
	// ReadDir returns up to count bytes of encoded directory entries
	// starting at the given byte offset into the stream. It returns
	// fewer bytes (including zero, at end of stream) if that is all
	// that remains; it never returns an error for being past the end.
	ReadDir(offset uint64, count int) ([]byte, error)
}
