// Package ninesrvutil collects small helpers for assembling a
// ninesrv.Config: FillDefaults, which supplies defaults for some of the
// callbacks a host doesn't want to implement, and WalkAndClone, the
// walk1+clone adapter described in spec.md §4.3 for hosts that have no
// ninesrv.FileTree and want to implement T-walk directly against their
// own fid-addressed storage.
package ninesrvutil

import (
	"context"
	"errors"

	"github.com/ninepfs/ninesrv"
	"github.com/ninepfs/ninesrv/wire"
)

// ErrNotSupported is returned by every default callback FillDefaults
// installs, the same role ENOSYS plays in the teacher's
// NotImplementedFileSystem.
var ErrNotSupported = errors.New("ninesrv: operation not supported")

// FillDefaults sets each of cfg's Auth, Attach, Create, Remove, Stat
// and Wstat callbacks that is nil to a handler that fails with
// ErrNotSupported (or, for Attach and Stat, where 9P convention treats
// the absence of policy as "allow", succeeds trivially). The other
// callbacks are left as they are. Call this after
// setting the callbacks a Config actually wants to support and before
// passing cfg to ninesrv.New, mirroring how a host would embed the
// teacher's NotImplementedFileSystem to inherit default ENOSYS
// behavior for whichever FileSystem methods it doesn't override.
func FillDefaults(cfg *ninesrv.Config) {
	if cfg.Auth == nil {
		cfg.Auth = func(ctx context.Context, srv *ninesrv.Srv, afid *ninesrv.Fid) error {
			return ErrNotSupported
		}
	}
	if cfg.Attach == nil {
		cfg.Attach = func(ctx context.Context, srv *ninesrv.Srv, fid, afid *ninesrv.Fid) error {
			return nil
		}
	}
	if cfg.Create == nil {
		cfg.Create = func(fid *ninesrv.Fid, name string, perm uint32, omode uint8) (wire.Qid, error) {
			return wire.Qid{}, ErrNotSupported
		}
	}
	if cfg.Remove == nil {
		cfg.Remove = func(fid *ninesrv.Fid) error { return ErrNotSupported }
	}
	if cfg.Stat == nil {
		cfg.Stat = func(fid *ninesrv.Fid, r *ninesrv.Req) error { return nil }
	}
	if cfg.Wstat == nil {
		cfg.Wstat = func(fid *ninesrv.Fid, r *ninesrv.Req) error { return ErrNotSupported }
	}
}
