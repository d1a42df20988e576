package ninesrv

import (
	"sync/atomic"

	"github.com/ninepfs/ninesrv/wire"
)

// Fid is a client-owned handle to a file within one connection
// (spec.md §3). omode is -1 until a successful T-open/T-create.
type Fid struct {
	Num  uint32
	Qid  wire.Qid
	Uid  string
	File FileNode
	Aux  interface{}

	srv *Srv

	mu        int32 // atomic: current omode+1, 0 means "unopened" (-1 sentinel)
	diroffset uint64
	rdir      DirReader

	refcount int32
}

const fidUnopened = -1

func newFid(num uint32, srv *Srv) *Fid {
	f := &Fid{Num: num, srv: srv, refcount: 1}
	f.setOmode(fidUnopened)
	return f
}

// Omode returns the fid's open mode, or -1 if it has not yet been
// opened (spec.md §3 invariant).
func (f *Fid) Omode() int {
	return int(atomic.LoadInt32(&f.mu)) - 1
}

func (f *Fid) setOmode(m int) {
	atomic.StoreInt32(&f.mu, int32(m)+1)
}

// Opened reports whether T-open/T-create has already succeeded for
// this fid; walk and a second open both refuse in that case.
func (f *Fid) Opened() bool {
	return f.Omode() != fidUnopened
}

// IsDir reports whether the fid's current qid names a directory.
func (f *Fid) IsDir() bool {
	return f.Qid.Type&uint8(wire.QTDIR) != 0
}

// IncRef bumps the fid's reference count, so one more DecRef is needed
// before the destroy hook runs. The engine itself does not call it: a
// walk of a fid onto itself reuses the same Fid without a bump.
func (f *Fid) IncRef() {
	atomic.AddInt32(&f.refcount, 1)
}

// DecRef drops the fid's reference count, running the user destroyfid
// hook and returning true when it reaches zero.
func (f *Fid) DecRef() bool {
	if atomic.AddInt32(&f.refcount, -1) > 0 {
		return false
	}
	if f.srv != nil && f.srv.cfg.DestroyFid != nil {
		f.srv.cfg.DestroyFid(f)
	}
	return true
}
