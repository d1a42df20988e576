package ninesrv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReqSetErrorFirstWins(t *testing.T) {
	r := newReq(1, nil)
	r.SetError("first")
	r.SetError("second")

	msg, ok := r.Error()
	require.True(t, ok)
	require.Equal(t, "first", msg)
}

func TestReqRespondedDefaultsFalse(t *testing.T) {
	r := newReq(1, nil)
	require.False(t, r.Responded())
	r.responded = true
	require.True(t, r.Responded())
}

func TestReqCloserunsDestroyHookAtZero(t *testing.T) {
	var called int
	srv := &Srv{cfg: Config{DestroyReq: func(r *Req) { called++ }}}
	r := newReq(1, srv)
	r.incref()
	r.closereq()
	require.Equal(t, 0, called)
	r.closereq()
	require.Equal(t, 1, called)
}
