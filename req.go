package ninesrv

import (
	"sync"
	"sync/atomic"

	"github.com/ninepfs/ninesrv/wire"
)

// Req is one in-flight request (spec.md §3). Exactly one call to
// Srv.respond is made per Req, whether it was allocated in the request
// pool or constructed as a "fake" duplicate-tag placeholder.
type Req struct {
	Tag    uint16
	Ifcall wire.Fcall
	Ofcall wire.Fcall

	Fid    *Fid
	Afid   *Fid
	Newfid *Fid
	Oldreq *Req

	// D is the stat payload for T-stat (the node's snapshot, taken by
	// the handler before Config.Stat runs) and T-wstat (as decoded by
	// the handler).
	D wire.Dir

	Aux interface{}

	srv  *Srv
	fake bool

	mu        sync.Mutex // guards responded and flush, per spec.md §5 (r.lk)
	responded bool
	flush     []*Req

	// suspend is set by the T-flush handler when its target has not
	// yet responded: the flush itself is not responded to here, but
	// later, from within the target's own respond() (spec.md §4.7).
	suspend bool

	errmsg   string
	hasError bool

	refcount int32
}

func newReq(tag uint16, srv *Srv) *Req {
	return &Req{Tag: tag, srv: srv, refcount: 1}
}

// SetError records a protocol/callback error to be reported as Rerror
// when the request is responded to (spec.md §7). The first call wins.
func (r *Req) SetError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasError {
		r.hasError = true
		r.errmsg = msg
	}
}

// Error returns the recorded error string, if any.
func (r *Req) Error() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errmsg, r.hasError
}

// Responded reports whether Srv.respond has already run for this
// request (spec.md §3: "responded transitions 0→1 exactly once").
func (r *Req) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}

func (r *Req) incref() {
	atomic.AddInt32(&r.refcount, 1)
}

// closereq decrements the request's refcount, running destroyreq when
// it reaches zero (spec.md §4.4 step 7).
func (r *Req) closereq() {
	if atomic.AddInt32(&r.refcount, -1) > 0 {
		return
	}
	if r.srv != nil && r.srv.cfg.DestroyReq != nil {
		r.srv.cfg.DestroyReq(r)
	}
}
