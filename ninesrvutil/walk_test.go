package ninesrvutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ninepfs/ninesrv"
	"github.com/ninepfs/ninesrv/wire"
)

func TestWalkAndCloneFullWalk(t *testing.T) {
	positions := map[*ninesrv.Fid][]string{}

	walk1 := func(fid *ninesrv.Fid, name string) (wire.Qid, error) {
		positions[fid] = append(positions[fid], name)
		return wire.Qid{Path: uint64(len(positions[fid]))}, nil
	}
	clone := func(fid, newfid *ninesrv.Fid) error {
		positions[newfid] = append([]string{}, positions[fid]...)
		return nil
	}

	walkFn := WalkAndClone(walk1, clone)

	fid := &ninesrv.Fid{}
	newfid := &ninesrv.Fid{}
	qids, err := walkFn(fid, newfid, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, qids, 3)
	require.Equal(t, []string{"a", "b", "c"}, positions[newfid])
}

func TestWalkAndClonePartialFailureStopsAtFirstError(t *testing.T) {
	walk1 := func(fid *ninesrv.Fid, name string) (wire.Qid, error) {
		if name == "b" {
			return wire.Qid{}, errors.New("not found")
		}
		return wire.Qid{Path: 1}, nil
	}
	clone := func(fid, newfid *ninesrv.Fid) error { return nil }

	walkFn := WalkAndClone(walk1, clone)
	fid, newfid := &ninesrv.Fid{}, &ninesrv.Fid{}
	qids, err := walkFn(fid, newfid, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, qids, 1)
}

func TestWalkAndCloneZeroNamesResolvedIsError(t *testing.T) {
	walk1 := func(fid *ninesrv.Fid, name string) (wire.Qid, error) {
		return wire.Qid{}, errors.New("not found")
	}
	walkFn := WalkAndClone(walk1, nil)
	fid, newfid := &ninesrv.Fid{}, &ninesrv.Fid{}
	_, err := walkFn(fid, newfid, []string{"a"})
	require.Error(t, err)
}
