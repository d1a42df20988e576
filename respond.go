package ninesrv

import (
	"sync/atomic"

	"github.com/ninepfs/ninesrv/wire"
)

// respond is the single path by which any Req, real or fake, is
// answered (spec.md §4.4/§9). It is called exactly once per Req: from
// dispatch() for an ordinary request, from work() for a duplicate-tag
// placeholder, and recursively from here for every flush queued
// against a target by the time the target itself responds.
func (srv *Srv) respond(r *Req) {
	r.mu.Lock()
	if r.responded {
		r.mu.Unlock()
		srv.logger.Error("ninesrv: double respond, ignoring")
		return
	}
	r.mu.Unlock()

	if !r.fake {
		srv.reqs.remove(r.Tag)
	}

	if msg, hasErr := r.Error(); hasErr {
		r.Ofcall.Type = wire.Rerror
		r.Ofcall.Tag = r.Tag
		r.Ofcall.Ename = msg
	}

	buf := srv.encodeResponse(r)
	if err := srv.writeMessage(buf); err != nil {
		srv.logger.WithError(err).Warn("ninesrv: write response")
	}
	srv.bufs.put(buf)

	r.mu.Lock()
	r.responded = true
	pending := r.flush
	r.flush = nil
	r.mu.Unlock()

	for _, f := range pending {
		srv.respond(f)
	}

	r.closereq()
	atomic.AddInt32(&srv.rref, -1)
	srv.maybeClose()
}

// encodeResponse serializes r.Ofcall into a buffer taken from srv.bufs
// and sized to the connection's current msize. Each response gets its own
// buffer rather than sharing one on Srv: concurrent workers, and a
// flush draining recursively into its target's own respond() call, can
// both be encoding a response at the same instant (spec.md §4.1/§4.7).
func (srv *Srv) encodeResponse(r *Req) []byte {
	out := srv.bufs.get(int(srv.Msize()))
	n, err := srv.cfg.Codec.Encode(&r.Ofcall, out)
	if err != nil {
		grown := make([]byte, srv.Msize()*2)
		n, err = srv.cfg.Codec.Encode(&r.Ofcall, grown)
		if err != nil {
			srv.logger.WithError(err).Error("ninesrv: failed to encode response even after growing buffer")
			return nil
		}
		return grown[:n]
	}
	return out[:n]
}
