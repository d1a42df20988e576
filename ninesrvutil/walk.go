package ninesrvutil

import (
	"github.com/ninepfs/ninesrv"
	"github.com/ninepfs/ninesrv/wire"
)

// WalkAndClone builds a ninesrv.Config.Walk implementation out of a
// single-step walk1 and a clone function, for hosts that address their
// files directly through *ninesrv.Fid (via Fid.Aux) instead of
// supplying a ninesrv.FileTree (spec.md §4.3). clone seeds newfid at
// fid's current position; walk1 then steps newfid forward one name at
// a time. The engine itself has already refused the fid==newfid-with-
// more-than-one-name case and allocated any fresh newfid, so this
// adapter only ever sees a multi-step walk onto a fresh newfid or a
// single-step walk, in which newfid may be fid itself.
func WalkAndClone(
	walk1 func(fid *ninesrv.Fid, name string) (wire.Qid, error),
	clone func(fid, newfid *ninesrv.Fid) error,
) func(fid, newfid *ninesrv.Fid, names []string) ([]wire.Qid, error) {
	return func(fid, newfid *ninesrv.Fid, names []string) ([]wire.Qid, error) {
		if clone != nil {
			if err := clone(fid, newfid); err != nil {
				return nil, err
			}
		}

		qids := make([]wire.Qid, 0, len(names))
		var stepErr error
		for _, name := range names {
			qid, err := walk1(newfid, name)
			if err != nil {
				stepErr = err
				break
			}
			qids = append(qids, qid)
		}

		if len(qids) == 0 && len(names) > 0 {
			return nil, stepErr
		}
		return qids, nil
	}
}
