package ninesrv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ninepfs/ninesrv/wire"
)

func TestFidOmodeLifecycle(t *testing.T) {
	f := newFid(1, nil)
	require.False(t, f.Opened())
	require.Equal(t, fidUnopened, f.Omode())

	f.setOmode(int(wire.OREAD))
	require.True(t, f.Opened())
	require.Equal(t, int(wire.OREAD), f.Omode())
}

func TestFidDecRefRunsDestroyHook(t *testing.T) {
	var called int
	srv := &Srv{cfg: Config{DestroyFid: func(f *Fid) { called++ }}}
	f := newFid(1, srv)
	f.IncRef()
	require.False(t, f.DecRef())
	require.Equal(t, 0, called)
	require.True(t, f.DecRef())
	require.Equal(t, 1, called)
}

func TestFidIsDir(t *testing.T) {
	f := newFid(1, nil)
	f.Qid = wire.Qid{Type: uint8(wire.QTDIR)}
	require.True(t, f.IsDir())

	f.Qid = wire.Qid{Type: 0}
	require.False(t, f.IsDir())
}
