package ninesrv

import "sync"

// fidPool and reqPool are thread-safe maps keyed by fid number / tag,
// per spec.md §4.2. sync.Map's LoadOrStore gives exactly the atomic
// "allocate unless already present" semantics spec.md requires of
// allocfid/allocreq without a separate mutex.
type fidPool struct {
	m sync.Map // uint32 -> *Fid
}

// alloc creates and inserts a fresh Fid for num, or returns (nil, false)
// if num is already present (spec.md: "fails if n already present").
func (p *fidPool) alloc(num uint32, srv *Srv) (*Fid, bool) {
	fid := newFid(num, srv)
	_, loaded := p.m.LoadOrStore(num, fid)
	if loaded {
		return nil, false
	}
	return fid, true
}

// lookup returns the Fid for num, or nil if absent.
func (p *fidPool) lookup(num uint32) *Fid {
	v, ok := p.m.Load(num)
	if !ok {
		return nil
	}
	return v.(*Fid)
}

// remove deletes and returns the Fid for num, or nil if absent.
func (p *fidPool) remove(num uint32) *Fid {
	v, ok := p.m.LoadAndDelete(num)
	if !ok {
		return nil
	}
	return v.(*Fid)
}

// each calls f for every remaining Fid without removing it from the
// pool.
func (p *fidPool) each(f func(*Fid)) {
	p.m.Range(func(_, v interface{}) bool {
		f(v.(*Fid))
		return true
	})
}

// drain removes every Fid from the pool, calling f for each one. Used
// at connection teardown (spec.md §4.2).
func (p *fidPool) drain(f func(*Fid)) {
	p.m.Range(func(k, v interface{}) bool {
		p.m.Delete(k)
		f(v.(*Fid))
		return true
	})
}

type reqPool struct {
	m sync.Map // uint16 -> *Req
}

func (p *reqPool) alloc(tag uint16, srv *Srv) (*Req, bool) {
	r := newReq(tag, srv)
	_, loaded := p.m.LoadOrStore(tag, r)
	if loaded {
		return nil, false
	}
	return r, true
}

func (p *reqPool) lookup(tag uint16) *Req {
	v, ok := p.m.Load(tag)
	if !ok {
		return nil
	}
	return v.(*Req)
}

func (p *reqPool) remove(tag uint16) *Req {
	v, ok := p.m.LoadAndDelete(tag)
	if !ok {
		return nil
	}
	return v.(*Req)
}

func (p *reqPool) each(f func(*Req)) {
	p.m.Range(func(_, v interface{}) bool {
		f(v.(*Req))
		return true
	})
}

// drain removes every Req from the pool, calling f for each one (used
// at connection teardown for any request a client never got a
// response to acknowledge).
func (p *reqPool) drain(f func(*Req)) {
	p.m.Range(func(k, v interface{}) bool {
		p.m.Delete(k)
		f(v.(*Req))
		return true
	})
}
