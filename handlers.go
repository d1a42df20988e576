package ninesrv

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/ninepfs/ninesrv/wire"
)

// dispatchTable maps each T-message type to its handler and the
// R-message type it replies with (spec.md §4.3, §9).
var dispatchTable = map[wire.MType]handlerEntry{
	wire.Tversion: {handle: sversion, responseType: wire.Rversion},
	wire.Tauth:    {handle: sauth, responseType: wire.Rauth},
	wire.Tattach:  {handle: sattach, responseType: wire.Rattach},
	wire.Tflush:   {handle: sflush, responseType: wire.Rflush},
	wire.Twalk:    {handle: swalk, responseType: wire.Rwalk},
	wire.Topen:    {handle: sopen, responseType: wire.Ropen},
	wire.Tcreate:  {handle: screate, responseType: wire.Rcreate},
	wire.Tread:    {handle: sread, responseType: wire.Rread},
	wire.Twrite:   {handle: swrite, responseType: wire.Rwrite},
	wire.Tclunk:   {handle: sclunk, responseType: wire.Rclunk},
	wire.Tremove:  {handle: sremove, responseType: wire.Rremove},
	wire.Tstat:    {handle: sstat, responseType: wire.Rstat},
	wire.Twstat:   {handle: swstat, responseType: wire.Rwstat},
}

const supportedVersion = "9P2000"

// maxMsize is the largest msize T-version will ever negotiate (spec.md
// §4.3, srv.c:184-187).
const maxMsize = 1024 * 1024

// sversion negotiates msize and the protocol version (spec.md §4.3,
// srv.c:166-189). It requires rref == 1: no other request may be
// outstanding while the connection renegotiates, since changeMsize
// changes the msize every other worker sizes its reads and responses
// by. Any
// version string not beginning with "9P" is answered with
// "unknown"/256 rather than an error, per 9P convention.
func sversion(srv *Srv, r *Req) {
	in := &r.Ifcall
	if atomic.LoadInt32(&srv.rref) != 1 {
		r.SetError(ErrBotch)
		return
	}

	if !strings.HasPrefix(in.Version, "9P") {
		r.Ofcall.Version = "unknown"
		r.Ofcall.Msize = 256
		return
	}

	r.Ofcall.Version = supportedVersion
	if in.Msize < 256 {
		r.SetError(ErrMsizeTooSmall)
		return
	}

	msize := in.Msize
	if msize > maxMsize {
		msize = maxMsize
	}
	r.Ofcall.Msize = msize
	srv.changeMsize(msize)
}

// sauth allocates an afid for Tauth. Without Config.Auth, T-auth is
// refused outright: there is no meaningful default authentication
// policy (spec.md §6, Auth is an external collaborator).
func sauth(srv *Srv, r *Req) {
	if srv.cfg.Auth == nil {
		r.SetError(ErrNoAuthRequired)
		return
	}

	in := &r.Ifcall
	afid, ok := srv.fids.alloc(in.Afid, srv)
	if !ok {
		r.SetError(ErrDuplicateFid)
		return
	}
	afid.Uid = in.Uname
	afid.Qid = wire.Qid{Type: wire.QTAUTH}

	if err := srv.cfg.Auth(context.Background(), srv, afid); err != nil {
		srv.fids.remove(afid.Num)
		r.SetError(err.Error())
		return
	}

	r.Afid = afid
	r.Ofcall.Qid = afid.Qid
}

// sattach allocates the root fid for a new connection (spec.md §4.3).
// When a Tree is configured, the new fid starts at its root node;
// Config.Attach (if set) still runs afterward to apply any additional
// policy, such as checking afid's prior T-auth outcome.
func sattach(srv *Srv, r *Req) {
	in := &r.Ifcall

	fid, ok := srv.fids.alloc(in.Fid, srv)
	if !ok {
		r.SetError(ErrDuplicateFid)
		return
	}
	fid.Uid = in.Uname

	var afid *Fid
	if in.Afid != wire.NOFID {
		afid = srv.fids.lookup(in.Afid)
		if afid == nil {
			srv.fids.remove(fid.Num)
			r.SetError(ErrUnknownFid)
			return
		}
	}
	r.Afid = afid

	if srv.cfg.Tree != nil {
		fid.File = srv.cfg.Tree.Root()
		fid.Qid = fid.File.Qid()
	}

	if srv.cfg.Attach != nil {
		if err := srv.cfg.Attach(context.Background(), srv, fid, afid); err != nil {
			srv.fids.remove(fid.Num)
			r.SetError(err.Error())
			return
		}
	}

	r.Fid = fid
	r.Ofcall.Qid = fid.Qid
}

// sflush defers Tflush's own response until the target request has
// responded (spec.md §4.3/§4.7). If the target is already gone or has
// already responded, Tflush is answered immediately with no error, as
// 9P requires: flush never itself fails.
func sflush(srv *Srv, r *Req) {
	target := srv.reqs.lookup(r.Ifcall.Oldtag)
	if target == nil || target == r {
		return
	}

	if srv.cfg.Flush != nil {
		srv.cfg.Flush(target)
	}

	target.mu.Lock()
	if target.responded {
		target.mu.Unlock()
		return
	}
	target.flush = append(target.flush, r)
	target.mu.Unlock()

	r.suspend = true
}

// swalk clones fid onto newfid, walking zero or more names (spec.md
// §4.3). A zero-length walk is pure clone and always succeeds. A
// partial walk (some but not all names resolve) answers with the
// shorter wqid array and leaves newfid untouched in the pool so a
// second walk can retry from fid. A walk that resolves zero of one or
// more requested names is an error.
func swalk(srv *Srv, r *Req) {
	in := &r.Ifcall

	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if fid.Opened() {
		r.SetError(ErrFidOpened)
		return
	}

	clone := in.Fid == in.Newfid
	if clone && len(in.Wname) > 1 {
		r.SetError(ErrUnusedWalk)
		return
	}

	var newfid *Fid
	if clone {
		newfid = fid
	} else {
		nf, ok := srv.fids.alloc(in.Newfid, srv)
		if !ok {
			r.SetError(ErrDuplicateFid)
			return
		}
		newfid = nf
	}
	r.Fid = fid
	r.Newfid = newfid

	if len(in.Wname) == 0 {
		newfid.Uid = fid.Uid
		newfid.Qid = fid.Qid
		newfid.File = fid.File
		return
	}

	if srv.cfg.Walk != nil {
		wqid, err := srv.cfg.Walk(fid, newfid, in.Wname)
		r.Ofcall.Wqid = wqid
		if len(wqid) == 0 && err != nil {
			if !clone {
				srv.fids.remove(newfid.Num)
			}
			r.SetError(err.Error())
		}
		return
	}

	if fid.File == nil {
		if !clone {
			srv.fids.remove(newfid.Num)
		}
		r.SetError(ErrWalkNondir)
		return
	}

	node := fid.File
	wqid := make([]wire.Qid, 0, len(in.Wname))
	for _, name := range in.Wname {
		next, err := node.Walk(name)
		if err != nil {
			break
		}
		node = next
		wqid = append(wqid, node.Qid())
	}

	r.Ofcall.Wqid = wqid
	if len(wqid) == 0 {
		if !clone {
			srv.fids.remove(newfid.Num)
		}
		r.SetError(ErrFileNotFound)
		return
	}
	if len(wqid) == len(in.Wname) {
		newfid.Uid = fid.Uid
		newfid.File = node
		newfid.Qid = node.Qid()
	}
	// Partial walk: newfid stays in the pool unpopulated, matching the
	// original's "clunk on partial failure" option being left to the
	// client, which will typically Tclunk newfid and retry.
}

// sopen validates and opens fid with the requested 9P mode (spec.md
// §4.3, srv.c:404). A directory may only be opened OREAD, optionally
// with ORCLOSE set.
func sopen(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if fid.Opened() {
		r.SetError(ErrBotch)
		return
	}
	if fid.IsDir() && in.Mode&^uint8(wire.ORCLOSE) != uint8(wire.OREAD) {
		r.SetError(ErrIsDirectory)
		return
	}

	if fid.File != nil {
		if !fid.File.HasPerm(fid.Uid, modePerm(in.Mode)) {
			r.SetError(ErrPermission)
			return
		}
		if in.Mode&uint8(wire.ORCLOSE) != 0 && !fid.File.DirWritable(fid.Uid) {
			r.SetError(ErrPermission)
			return
		}
	}

	// Config.Open is an additional policy hook run before the node's
	// own Open, letting a host apply checks a FileNode can't express
	// (or serve as the sole open policy when no Tree is attached).
	if srv.cfg.Open != nil {
		if err := srv.cfg.Open(fid, in.Mode); err != nil {
			r.SetError(err.Error())
			return
		}
	} else if fid.File == nil {
		r.SetError(ErrPermission)
		return
	}

	if fid.File != nil {
		if err := fid.File.Open(fid.Uid, in.Mode); err != nil {
			r.SetError(err.Error())
			return
		}
		if fid.IsDir() {
			rdir, err := fid.File.OpenDir()
			if err != nil {
				r.SetError(err.Error())
				return
			}
			fid.rdir = rdir
			fid.diroffset = 0
		}
	}

	fid.setOmode(int(in.Mode))
	r.Fid = fid
	r.Ofcall.Qid = fid.Qid
	r.Ofcall.Iounit = 0
}

// screate makes a new child of fid and opens it, per spec.md §4.3.
// Config.Create, when set, makes the child; otherwise a fid with a
// Tree entry uses the node's own FileNode.Create. With neither,
// T-create fails with ErrNoCreate.
func screate(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if fid.Opened() {
		r.SetError(ErrBotch)
		return
	}
	if !fid.IsDir() {
		r.SetError(ErrCreateNondir)
		return
	}
	if fid.File != nil && !fid.File.HasPerm(fid.Uid, wire.AWRITE) {
		r.SetError(ErrPermission)
		return
	}
	if fid.File == nil && srv.cfg.Create == nil {
		r.SetError(ErrNoCreate)
		return
	}

	var child FileNode
	var err error
	if srv.cfg.Create != nil {
		var qid wire.Qid
		qid, err = srv.cfg.Create(fid, in.Name, in.Perm, in.Mode)
		if err == nil {
			r.Ofcall.Qid = qid
			fid.Qid = qid
			fid.setOmode(int(in.Mode))
			r.Fid = fid
			return
		}
	} else {
		child, err = fid.File.Create(fid.Uid, in.Name, in.Perm, in.Mode)
	}
	if err != nil {
		r.SetError(err.Error())
		return
	}

	fid.File = child
	fid.Qid = child.Qid()
	fid.setOmode(int(in.Mode))
	r.Fid = fid
	r.Ofcall.Qid = fid.Qid
}

// sread serves Tread for both plain files and directories (spec.md
// §4.3). Directory fids enforce the monotonic-offset contract: a
// directory read at an offset other than 0 or the fid's own running
// offset is rejected, since 9P directory reads are a forward-only
// stream of whole stat records.
func sread(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if !fid.Opened() {
		r.SetError(ErrNotOpenForRead)
		return
	}
	count := in.Count
	if count > srv.Msize()-wire.IOHDRSZ {
		count = srv.Msize() - wire.IOHDRSZ
	}

	if fid.IsDir() {
		if in.Offset != 0 && in.Offset != fid.diroffset {
			r.SetError(ErrBadOffset)
			return
		}
		if fid.rdir == nil {
			r.SetError(ErrNotADirectory)
			return
		}
		data, err := fid.rdir.ReadDir(in.Offset, int(count))
		if err != nil {
			r.SetError(err.Error())
			return
		}
		fid.diroffset = in.Offset + uint64(len(data))
		r.Ofcall.Data = data
		r.Fid = fid
		return
	}

	if srv.cfg.Read != nil {
		buf := make([]byte, count)
		n, err := srv.cfg.Read(fid, buf, in.Offset)
		if err != nil {
			r.SetError(err.Error())
			return
		}
		r.Ofcall.Data = buf[:n]
		r.Fid = fid
		return
	}
	if fid.File == nil {
		r.SetError(ErrNotOpenForRead)
		return
	}

	buf := make([]byte, count)
	n, err := fid.File.ReadAt(buf, int64(in.Offset))
	if err != nil && n == 0 {
		r.SetError(err.Error())
		return
	}
	r.Ofcall.Data = buf[:n]
	r.Fid = fid
}

// swrite serves Twrite and bumps the node's Qid.Vers on success
// (spec.md §4.3, rwrite): every client that has walked to the same
// node observes the version bump on its next stat.
func swrite(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if !fid.Opened() || fid.IsDir() {
		r.SetError(ErrNotOpenForWrite)
		return
	}

	var n int
	var err error
	if srv.cfg.Write != nil {
		n, err = srv.cfg.Write(fid, in.Data, in.Offset)
	} else if fid.File != nil {
		n, err = fid.File.WriteAt(in.Data, int64(in.Offset))
	} else {
		r.SetError(ErrNoWrite)
		return
	}
	if err != nil {
		r.SetError(err.Error())
		return
	}

	if fid.File != nil {
		fid.File.IncVersion()
		fid.Qid = fid.File.Qid()
	}
	r.Fid = fid
	r.Ofcall.Count = uint32(n)
}

// sclunk retires fid whatever happened to it before, even if a prior
// operation on it failed; the only error is an unknown fid (spec.md
// §4.3).
func sclunk(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.remove(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	r.Fid = fid
	fid.DecRef()
}

// sremove removes fid's node, clunking fid regardless of the outcome
// (spec.md §4.3): the fid is gone either way, but a failed removal is
// reported as an error string prefixed the way the original C library
// formats it.
func sremove(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.remove(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	r.Fid = fid
	defer fid.DecRef()

	if fid.File == nil && srv.cfg.Remove == nil {
		r.SetError(ErrNoRemove)
		return
	}
	if fid.File != nil && !fid.File.DirWritable(fid.Uid) {
		r.SetError(ErrRemoveProhibited)
		return
	}

	name := "?"
	if fid.File != nil {
		name = fid.File.Stat().Name
	}

	var err error
	if srv.cfg.Remove != nil {
		err = srv.cfg.Remove(fid)
	} else {
		err = fid.File.Remove(fid.Uid)
	}
	if err != nil {
		r.SetError("remove " + name + ": " + err.Error())
	}
}

// sstat snapshots fid's node into r.D for the finalizer to encode
// (spec.md §4.3, rstat): the length-prefixed wire form is produced by
// wire.EncodeStat after Config.Stat (if any) has had a chance to amend
// the snapshot.
func sstat(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if fid.File == nil && srv.cfg.Stat == nil {
		r.SetError(ErrNoStat)
		return
	}

	if fid.File != nil {
		r.D = fid.File.Stat()
	}
	if srv.cfg.Stat != nil {
		if err := srv.cfg.Stat(fid, r); err != nil {
			r.SetError(err.Error())
			return
		}
	}
	r.Fid = fid
	r.Ofcall.Stat = wire.EncodeStat(r.D)
}

// swstat decodes the inline stat payload and applies it via
// Config.Wstat, which must exist: there is no default wstat policy
// (spec.md §4.3).
func swstat(srv *Srv, r *Req) {
	in := &r.Ifcall
	fid := srv.fids.lookup(in.Fid)
	if fid == nil {
		r.SetError(ErrUnknownFid)
		return
	}
	if srv.cfg.Wstat == nil {
		r.SetError(ErrNoWstat)
		return
	}

	d, err := wire.DecodeStat(in.Stat)
	if err != nil {
		r.SetError(ErrBadWstatDir)
		return
	}

	if d.Qid.Path != wire.NoTouchPath && d.Qid.Path != fid.Qid.Path {
		r.SetError(ErrWstatChangePath)
		return
	}
	if d.Qid.Vers != wire.NoTouchVers && d.Qid.Vers != fid.Qid.Vers {
		r.SetError(ErrWstatChangeVers)
		return
	}
	if d.Mode != wire.NoTouchMode {
		if d.Mode&^(uint32(wire.DMDIR)|uint32(wire.DMAPPEND)|uint32(wire.DMEXCL)|uint32(wire.DMTMP)|0777) != 0 {
			r.SetError(ErrWstatUnknownModeBits)
			return
		}
		modeType := uint8(d.Mode >> 24)
		if d.Qid.Type != wire.NoTouchQidType && d.Qid.Type != modeType {
			r.SetError(ErrWstatModeMismatch)
			return
		}
		if (modeType^fid.Qid.Type)&^(uint8(wire.QTAPPEND)|uint8(wire.QTEXCL)|uint8(wire.QTTMP)) != 0 {
			r.SetError(ErrWstatChangeType)
			return
		}
	} else if d.Qid.Type != wire.NoTouchQidType && d.Qid.Type != fid.Qid.Type {
		r.SetError(ErrWstatChangeType)
		return
	}

	r.D = d
	r.Fid = fid

	if err := srv.cfg.Wstat(fid, r); err != nil {
		r.SetError(err.Error())
		return
	}
}

// modePerm translates a 9P open mode into the permission bits
// FileNode.HasPerm checks (spec.md §4.3, srv.c:426-427): OTRUNC
// additionally requires write permission, since truncating a file
// modifies it regardless of the read/write bits requested.
func modePerm(mode uint8) Perm {
	var perm Perm
	switch mode & 0x3 {
	case uint8(wire.OREAD):
		perm = wire.AREAD
	case uint8(wire.OWRITE):
		perm = wire.AWRITE
	case uint8(wire.ORDWR):
		perm = wire.AREAD | wire.AWRITE
	case uint8(wire.OEXEC):
		perm = wire.AEXEC
	}
	if mode&uint8(wire.OTRUNC) != 0 {
		perm |= wire.AWRITE
	}
	return perm
}
