package ninesrv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFidPoolAllocDuplicate(t *testing.T) {
	var p fidPool
	f1, ok := p.alloc(1, nil)
	require.True(t, ok)
	require.NotNil(t, f1)

	f2, ok := p.alloc(1, nil)
	require.False(t, ok)
	require.Nil(t, f2)

	require.Equal(t, f1, p.lookup(1))
	require.Equal(t, f1, p.remove(1))
	require.Nil(t, p.lookup(1))
}

func TestReqPoolAllocDuplicate(t *testing.T) {
	var p reqPool
	r1, ok := p.alloc(5, nil)
	require.True(t, ok)
	require.NotNil(t, r1)

	r2, ok := p.alloc(5, nil)
	require.False(t, ok)
	require.Nil(t, r2)

	require.Equal(t, r1, p.remove(5))
	require.Nil(t, p.lookup(5))
}

func TestPoolEach(t *testing.T) {
	var p fidPool
	p.alloc(1, nil)
	p.alloc(2, nil)
	p.alloc(3, nil)

	seen := map[uint32]bool{}
	p.each(func(f *Fid) { seen[f.Num] = true })
	require.Len(t, seen, 3)
}
