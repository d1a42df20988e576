package ninesrv

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ninepfs/ninesrv/tree"
	"github.com/ninepfs/ninesrv/wire"
)

// testClient drives a Srv over an in-process pipe, encoding requests
// with the same codec the server uses and decoding responses the same
// way, so these tests exercise the real wire path end to end.
type testClient struct {
	t    *testing.T
	toSrv *io.PipeWriter
	fromSrv *io.PipeReader
	mu   sync.Mutex
}

func newTestServer(t *testing.T, treeUID string) (*Srv, *testClient) {
	clientR, srvW := io.Pipe()
	srvR, clientW := io.Pipe()

	srv := New(Config{
		In:   srvR,
		Out:  srvW,
		Tree: tree.New(treeUID),
		Wstat: func(fid *Fid, r *Req) error {
			return fid.File.Wstat(r.D)
		},
	})

	go srv.Serve()

	return srv, &testClient{t: t, toSrv: clientW, fromSrv: clientR}
}

func (c *testClient) send(f *wire.Fcall) {
	buf := make([]byte, 8192)
	n, err := wire.Default9P2000.Encode(f, buf)
	require.NoError(c.t, err)
	_, err = c.toSrv.Write(buf[:n])
	require.NoError(c.t, err)
}

func (c *testClient) recv() *wire.Fcall {
	var szBuf [4]byte
	_, err := io.ReadFull(c.fromSrv, szBuf[:])
	require.NoError(c.t, err)
	sz := binary.LittleEndian.Uint32(szBuf[:])
	body := make([]byte, sz-4)
	_, err = io.ReadFull(c.fromSrv, body)
	require.NoError(c.t, err)
	fc, err := wire.Default9P2000.Decode(body)
	require.NoError(c.t, err)
	return fc
}

func (c *testClient) version(t *testing.T) {
	c.send(&wire.Fcall{Type: wire.Tversion, Tag: wire.NOTAG, Msize: 8192, Version: "9P2000"})
	r := c.recv()
	require.Equal(t, wire.Rversion, r.Type)
	require.Equal(t, "9P2000", r.Version)
}

func (c *testClient) versionWith(msize uint32, ver string) *wire.Fcall {
	c.send(&wire.Fcall{Type: wire.Tversion, Tag: wire.NOTAG, Msize: msize, Version: ver})
	return c.recv()
}

func TestServeVersionAttachWalkOpenReadWrite(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()

	c.version(t)

	c.send(&wire.Fcall{Type: wire.Tattach, Tag: 1, Fid: 1, Afid: wire.NOFID, Uname: "glenda"})
	r := c.recv()
	require.Equal(t, wire.Rattach, r.Type)

	c.send(&wire.Fcall{Type: wire.Tcreate, Tag: 2, Fid: 1, Name: "file1", Perm: 0644, Mode: uint8(wire.OWRITE)})
	r = c.recv()
	require.Equal(t, wire.Rcreate, r.Type)

	c.send(&wire.Fcall{Type: wire.Twrite, Tag: 3, Fid: 1, Offset: 0, Data: []byte("hello world")})
	r = c.recv()
	require.Equal(t, wire.Rwrite, r.Type)
	require.EqualValues(t, len("hello world"), r.Count)

	c.send(&wire.Fcall{Type: wire.Tclunk, Tag: 4, Fid: 1})
	r = c.recv()
	require.Equal(t, wire.Rclunk, r.Type)

	// Re-attach and walk to the file we just created and wrote.
	c.send(&wire.Fcall{Type: wire.Tattach, Tag: 5, Fid: 2, Afid: wire.NOFID, Uname: "glenda"})
	r = c.recv()
	require.Equal(t, wire.Rattach, r.Type)

	c.send(&wire.Fcall{Type: wire.Twalk, Tag: 6, Fid: 2, Newfid: 3, Wname: []string{"file1"}})
	r = c.recv()
	require.Equal(t, wire.Rwalk, r.Type)
	require.Len(t, r.Wqid, 1)

	c.send(&wire.Fcall{Type: wire.Topen, Tag: 7, Fid: 3, Mode: uint8(wire.OREAD)})
	r = c.recv()
	require.Equal(t, wire.Ropen, r.Type)

	c.send(&wire.Fcall{Type: wire.Tread, Tag: 8, Fid: 3, Offset: 0, Count: 64})
	r = c.recv()
	require.Equal(t, wire.Rread, r.Type)
	require.Equal(t, "hello world", string(r.Data))
}

func TestWalkUnresolvedNameIsError(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()
	c.version(t)

	c.send(&wire.Fcall{Type: wire.Tattach, Tag: 1, Fid: 1, Afid: wire.NOFID, Uname: "glenda"})
	c.recv()

	c.send(&wire.Fcall{Type: wire.Twalk, Tag: 2, Fid: 1, Newfid: 9, Wname: []string{"nonexistent"}})
	r := c.recv()
	require.Equal(t, wire.Rerror, r.Type)
}

func TestDuplicateFidRespondsWithError(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()
	c.version(t)

	// Attach with a fid, but we need an outstanding request with the
	// same tag still unresponded to trigger the duplicate-tag path
	// deterministically; since our worker is single-threaded by
	// default here and handles requests synchronously, we instead
	// verify duplicate *fid* allocation, the other half of the same
	// pool mechanism (spec.md §4.2).
	c.send(&wire.Fcall{Type: wire.Tattach, Tag: 1, Fid: 1, Afid: wire.NOFID, Uname: "glenda"})
	r := c.recv()
	require.Equal(t, wire.Rattach, r.Type)

	c.send(&wire.Fcall{Type: wire.Tattach, Tag: 2, Fid: 1, Afid: wire.NOFID, Uname: "glenda"})
	r = c.recv()
	require.Equal(t, wire.Rerror, r.Type)
	require.Equal(t, ErrDuplicateFid, r.Ename)
}

func TestShutdownDrainsConnection(t *testing.T) {
	clientR, srvW := io.Pipe()
	srvR, clientW := io.Pipe()

	srv := New(Config{In: srvR, Out: srvW, Tree: tree.New("glenda")})

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	c := &testClient{t: t, toSrv: clientW, fromSrv: clientR}
	c.version(t)

	require.NoError(t, c.toSrv.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after client closed the connection")
	}
}

func TestVersionNegotiatesClientMsizeUpward(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()

	r := c.versionWith(16384, "9P2000")
	require.Equal(t, wire.Rversion, r.Type)
	require.Equal(t, "9P2000", r.Version)
	require.EqualValues(t, 16384, r.Msize)
}

func TestVersionUnknownRepliesWithSentinelMsize(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()

	r := c.versionWith(8192, "XYZ")
	require.Equal(t, wire.Rversion, r.Type)
	require.Equal(t, "unknown", r.Version)
	require.EqualValues(t, 256, r.Msize)
}

func TestVersionRejectsUndersizedMsize(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()

	r := c.versionWith(128, "9P2000")
	require.Equal(t, wire.Rerror, r.Type)
	require.Equal(t, ErrMsizeTooSmall, r.Ename)
}

func TestWstatRejectsQidPathChange(t *testing.T) {
	_, c := newTestServer(t, "glenda")
	defer c.toSrv.Close()
	c.version(t)

	c.send(&wire.Fcall{Type: wire.Tattach, Tag: 1, Fid: 1, Afid: wire.NOFID, Uname: "glenda"})
	r := c.recv()
	require.Equal(t, wire.Rattach, r.Type)

	c.send(&wire.Fcall{Type: wire.Tcreate, Tag: 2, Fid: 1, Name: "file1", Perm: 0644, Mode: uint8(wire.OWRITE)})
	r = c.recv()
	require.Equal(t, wire.Rcreate, r.Type)
	fileQid := r.Qid

	// A wstat naming a qid.path other than fid's own is rejected before
	// it ever reaches the user Wstat callback.
	bad := wire.Dir{
		Qid:  wire.Qid{Path: fileQid.Path + 1, Vers: wire.NoTouchVers, Type: wire.NoTouchQidType},
		Mode: wire.NoTouchMode,
	}
	c.send(&wire.Fcall{Type: wire.Twstat, Tag: 3, Fid: 1, Stat: wire.EncodeStat(bad)})
	r = c.recv()
	require.Equal(t, wire.Rerror, r.Type)
	require.Equal(t, ErrWstatChangePath, r.Ename)

	// Leaving qid.path at the sentinel and only renaming succeeds.
	ok := wire.Dir{
		Qid:  wire.Qid{Path: wire.NoTouchPath, Vers: wire.NoTouchVers, Type: wire.NoTouchQidType},
		Mode: wire.NoTouchMode,
		Name: "file2",
	}
	c.send(&wire.Fcall{Type: wire.Twstat, Tag: 4, Fid: 1, Stat: wire.EncodeStat(ok)})
	r = c.recv()
	require.Equal(t, wire.Rwstat, r.Type)
}
