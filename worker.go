package ninesrv

import (
	"sync/atomic"
)

// work is the body of one worker: read, decode, dispatch, repeat, until
// the connection yields an error (normally io.EOF). Exactly one
// goroutine runs this loop per live worker; the dispatch step itself
// always runs with slock held, so handlers that do not call
// Srv.Acquire/Release never race each other (spec.md §4.5, §9: srv()).
func (srv *Srv) work(id uint64) {
	for {
		msg, err := srv.readMessage()
		if err != nil {
			break
		}

		fcall, derr := srv.cfg.Codec.Decode(msg)
		if derr != nil {
			srv.logger.WithError(derr).Debug("ninesrv: dropping unparseable message")
			continue
		}

		r, ok := srv.reqs.alloc(fcall.Tag, srv)
		if !ok {
			fake := newReq(fcall.Tag, srv)
			fake.fake = true
			fake.Ifcall = *fcall
			fake.SetError(ErrDuplicateTag)
			atomic.AddInt32(&srv.rref, 1)
			srv.respond(fake)
			continue
		}
		r.Ifcall = *fcall
		atomic.AddInt32(&srv.rref, 1)

		srv.slock.Lock()
		srv.dispatch(r)
		retire := atomic.LoadInt32(&srv.sref) > srv.maxWorkers && id != srv.originalID
		srv.slock.Unlock()

		if retire {
			atomic.AddInt32(&srv.sref, -1)
			return
		}
	}
	srv.workerDone()
}

// workerDone runs once a worker's read loop observes EOF or a read
// error. When it is the last live worker it runs the user End hook
// before dropping its own sref, matching the original's "call end
// exactly once, right before the last worker would otherwise exit"
// ordering (spec.md §4.5, srv()/srvwork()).
func (srv *Srv) workerDone() {
	if srv.cfg.End != nil && atomic.LoadInt32(&srv.sref) == 1 {
		srv.cfg.End(srv)
	}
	atomic.AddInt32(&srv.sref, -1)
	srv.maybeClose()
}

// dispatch looks up r's handler by message type, runs it, and always
// calls respond exactly once, even for an unknown message type
// (spec.md §4.3/§9).
func (srv *Srv) dispatch(r *Req) {
	entry, ok := dispatchTable[r.Ifcall.Type]
	if !ok {
		r.SetError(ErrUnknownMessage)
		srv.respond(r)
		return
	}

	r.Ofcall.Type = entry.responseType
	r.Ofcall.Tag = r.Tag

	entry.handle(srv, r)
	if r.suspend {
		return
	}
	srv.respond(r)
}
