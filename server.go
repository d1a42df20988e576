// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ninesrv

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ninepfs/ninesrv/wire"
)

// DefaultMsize is used when Config.Msize is zero (spec.md §6).
const DefaultMsize = 8192 + wire.IOHDRSZ

// DefaultMaxWorkers is the elastic pool's retirement threshold: a
// non-original worker that finishes a dispatch while more than this
// many workers are live exits instead of looping (spec.md §4.5).
const DefaultMaxWorkers = 8

// SpawnFunc launches fn as a new worker. The host decides whether that
// means a goroutine, an OS thread, or something else (spec.md §5); the
// zero value of Config uses a plain "go fn()".
type SpawnFunc func(fn func())

// Config is the server configuration supplied to New (spec.md §6).
// Every callback is optional; the comments on each describe the
// behavior when it is left nil.
type Config struct {
	// In and Out are the two halves of the bidirectional byte stream.
	// They may be the same underlying connection (e.g. a net.Conn
	// satisfies both).
	In  io.Reader
	Out io.Writer

	// Msize is the initial negotiated message size. Zero means
	// DefaultMsize.
	Msize uint32

	// Codec marshals/unmarshals Fcall values. Nil means
	// wire.Default9P2000.
	Codec wire.Codec

	// Tree is the optional synthetic or real file tree backing attach.
	// Nil means attach never has a tree to hand to the fid, and
	// everything must go through Walk/Open/etc.
	Tree FileTree

	// Logger receives structured debug/warn output. Nil means a
	// logger with output discarded.
	Logger *logrus.Logger

	// Spawn launches additional workers when the elastic pool grows
	// (spec.md §4.5/§9). Nil means "go fn()".
	Spawn SpawnFunc

	// MaxWorkers is the elastic pool's retirement threshold. Zero
	// means DefaultMaxWorkers.
	MaxWorkers int

	// Aux is an opaque pointer threaded through to callbacks.
	Aux interface{}

	// Auth authenticates an afid allocated by T-auth. Nil means
	// T-auth always replies with ErrNoAuthRequired.
	Auth func(ctx context.Context, srv *Srv, afid *Fid) error

	// Attach validates/prepares a newly attached fid. Nil means every
	// attach succeeds.
	Attach func(ctx context.Context, srv *Srv, fid, afid *Fid) error

	// Walk1 steps fid to its child named name, the single-step half of
	// the pair ninesrvutil.WalkAndClone combines into a Walk. The
	// engine does not call Walk1 itself: a T-walk on a fid with no Tree
	// entry goes through Walk only, and fails with ErrWalkNondir when
	// Walk is nil.
	Walk1 func(fid *Fid, name string) (wire.Qid, error)

	// Clone prepares newfid as a copy of fid (no names walked yet). Like
	// Walk1, it is not called by the engine itself.
	Clone func(fid, newfid *Fid) error

	// Walk implements the whole of T-walk itself. When set, it takes
	// priority over Tree-based walking and Walk1/Clone.
	Walk func(fid, newfid *Fid, names []string) ([]wire.Qid, error)

	// Open validates/prepares opening fid with the 9P open mode omode.
	// Nil means every open succeeds.
	Open func(fid *Fid, omode uint8) error

	// Create makes a new child of fid named name. Nil means T-create
	// always fails with ErrNoCreate, unless Tree is set (spec.md
	// §4.3).
	Create func(fid *Fid, name string, perm uint32, omode uint8) (wire.Qid, error)

	// Read serves Tread for a non-directory fid into buf at offset.
	// Nil means a fid with a Tree entry is read through
	// FileNode.ReadAt, and one without fails with ErrNotOpenForRead.
	// Directory reads never reach Read.
	Read func(fid *Fid, buf []byte, offset uint64) (int, error)

	// Write serves Twrite. Nil means a fid with a Tree entry is written
	// through FileNode.WriteAt, and one without fails with ErrNoWrite.
	Write func(fid *Fid, data []byte, offset uint64) (int, error)

	// Remove is called after the fid has already been removed from the
	// pool. Nil with a Tree entry is success; nil without one fails
	// with ErrNoRemove.
	Remove func(fid *Fid) error

	// Stat is called after the handler has already snapshotted a Tree
	// entry's Dir, if any, into Req.D. Nil with a Tree entry is
	// success; nil without one fails with ErrNoStat.
	Stat func(fid *Fid, r *Req) error

	// Wstat applies r.D (already decoded and validated) to fid. T-wstat
	// fails with ErrNoWstat if this is nil, regardless of Tree.
	Wstat func(fid *Fid, r *Req) error

	// Flush is invoked for T-flush in addition to the built-in
	// deferral machinery; it may be used to proactively cancel the
	// target's in-progress callback.
	Flush func(target *Req)

	// DestroyFid/DestroyReq run when a pool record's refcount reaches
	// zero (spec.md §4.2).
	DestroyFid func(fid *Fid)
	DestroyReq func(r *Req)

	// Start/End/Free are lifecycle hooks (spec.md §4.5): Start runs
	// once before the first read, End runs once when the last worker
	// observes EOF, and Free runs once both sref and rref have reached
	// zero.
	Start func(srv *Srv)
	End   func(srv *Srv)
	Free  func(srv *Srv)
}

// handlerEntry is the per-request-type strategy record described in
// spec.md §9. handle performs both the T-handler's validation/dispatch
// to the user callback and the R-finalizer's post-callback fixups, in
// sequence; nothing in this translation runs the user callback
// asynchronously, so there is no separate suspension boundary except
// the one flush implements explicitly via Req.suspend.
type handlerEntry struct {
	handle       func(srv *Srv, r *Req)
	responseType wire.MType
}

// Srv holds all per-connection state: the wire I/O buffers and locks,
// the fid and tag pools, and the callbacks and tree from Config
// (spec.md §3, "Srv").
type Srv struct {
	cfg    Config
	logger *logrus.Logger

	in  io.Reader
	out io.Writer

	msize uint32

	rlock sync.Mutex
	wlock sync.Mutex
	slock sync.Mutex

	fids fidPool
	reqs reqPool
	bufs bufferPool

	sref int32 // atomic: count of live/acquired workers
	rref int32 // atomic: count of outstanding requests

	maxWorkers   int32
	nextWorkerID uint64
	originalID   uint64

	sem *semaphore.Weighted

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Srv from cfg. The returned Srv is not yet reading from
// the wire; call Serve to do that.
func New(cfg Config) *Srv {
	msize := cfg.Msize
	if msize == 0 {
		msize = DefaultMsize
	}

	codec := cfg.Codec
	if codec == nil {
		codec = wire.Default9P2000
	}
	cfg.Codec = codec

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	spawn := cfg.Spawn
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}
	cfg.Spawn = spawn

	maxWorkers := cfg.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = DefaultMaxWorkers
	}

	srv := &Srv{
		cfg:        cfg,
		logger:     logger,
		in:         cfg.In,
		out:        cfg.Out,
		msize:      msize,
		maxWorkers: int32(maxWorkers),
		sem:        semaphore.NewWeighted(int64(maxWorkers) * 4),
		closed:     make(chan struct{}),
	}

	return srv
}

// Msize returns the server's current negotiated message size.
func (srv *Srv) Msize() uint32 {
	srv.rlock.Lock()
	defer srv.rlock.Unlock()
	return srv.msize
}

// Aux returns the opaque pointer passed in Config.
func (srv *Srv) Aux() interface{} { return srv.cfg.Aux }

// Serve reads and dispatches requests until the connection drains
// (spec.md §4.5/§4.9). It blocks in the calling goroutine, acting as
// the "original" worker (spec.md's spid). Serve returns nil once the
// connection has fully drained and all lifecycle hooks have run.
func (srv *Srv) Serve() error {
	atomic.StoreInt32(&srv.sref, 1)
	srv.originalID = 1

	if srv.cfg.Start != nil {
		srv.cfg.Start(srv)
	}

	srv.work(srv.originalID)
	<-srv.closed
	return nil
}

// Acquire is called by a handler that has finished the blocking work it
// began after Release. It announces one more active worker and
// reacquires the dispatch lock (spec.md §4.5, §9: srvacquire). Always
// pair with a prior call to Release.
func (srv *Srv) Acquire() {
	atomic.AddInt32(&srv.sref, 1)
	srv.slock.Lock()
}

// Release gives up the dispatch lock so other workers may proceed. If
// this was the last active worker, it spawns a replacement first, so
// the "always keep one worker reading" invariant holds even while this
// goroutine blocks outside the lock (spec.md §4.5, §9: srvrelease).
func (srv *Srv) Release() {
	if atomic.AddInt32(&srv.sref, -1) == 0 {
		atomic.AddInt32(&srv.sref, 1)
		srv.spawnWorker()
	}
	srv.slock.Unlock()
}

func (srv *Srv) spawnWorker() {
	id := atomic.AddUint64(&srv.nextWorkerID, 1)
	if err := srv.sem.Acquire(context.Background(), 1); err != nil {
		srv.logger.WithError(err).Error("ninesrv: failed to acquire worker slot")
		atomic.AddInt32(&srv.sref, -1)
		return
	}
	srv.cfg.Spawn(func() {
		defer srv.sem.Release(1)
		srv.work(id)
	})
}

// Shutdown closes the read half of the connection (when Config.In is an
// io.Closer) so that outstanding and future reads fail, triggering the
// normal drain sequence. It does not wait for the drain to complete;
// Serve returns once it has.
func (srv *Srv) Shutdown() error {
	if closer, ok := srv.in.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// close runs once both sref and rref have reached zero: it frees
// buffers, tears down both pools (running user destructors on any
// stragglers), and calls the user Free hook (spec.md §4.5, srvclose).
func (srv *Srv) close() {
	srv.closeOnce.Do(func() {
		srv.fids.drain(func(f *Fid) { f.DecRef() })
		srv.reqs.drain(func(r *Req) { r.closereq() })

		if srv.cfg.Free != nil {
			srv.cfg.Free(srv)
		}
		close(srv.closed)
	})
}

func (srv *Srv) maybeClose() {
	if atomic.LoadInt32(&srv.sref) == 0 && atomic.LoadInt32(&srv.rref) == 0 {
		srv.close()
	}
}
