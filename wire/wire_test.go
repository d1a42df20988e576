package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Fcall{
		{Type: Tversion, Tag: NOTAG, Msize: 8192, Version: "9P2000"},
		{Type: Tattach, Tag: 1, Fid: 1, Afid: NOFID, Uname: "glenda", Aname: ""},
		{Type: Twalk, Tag: 2, Fid: 1, Newfid: 2, Wname: []string{"a", "b"}},
		{Type: Topen, Tag: 3, Fid: 2, Mode: OREAD},
		{Type: Tcreate, Tag: 4, Fid: 2, Name: "x", Perm: 0644, Mode: OWRITE},
		{Type: Tread, Tag: 5, Fid: 2, Offset: 0, Count: 64},
		{Type: Twrite, Tag: 6, Fid: 2, Offset: 0, Data: []byte("hello")},
		{Type: Tclunk, Tag: 7, Fid: 2},
		{Type: Tremove, Tag: 8, Fid: 2},
		{Type: Tstat, Tag: 9, Fid: 2},
		{Type: Tflush, Tag: 10, Oldtag: 5},
		{Type: Tauth, Tag: 11, Afid: 3, Uname: "glenda", Aname: "ctl"},
	}

	for _, in := range cases {
		buf := make([]byte, 8192)
		n, err := Default9P2000.Encode(in, buf)
		require.NoError(t, err)
		require.Greater(t, n, 4)

		out, err := Default9P2000.Decode(buf[4:n])
		require.NoError(t, err)
		require.Equal(t, in.Type, out.Type)
		require.Equal(t, in.Tag, out.Tag)
		require.Equal(t, in.Fid, out.Fid)

		switch in.Type {
		case Twalk:
			require.Equal(t, in.Wname, out.Wname)
			require.Equal(t, in.Newfid, out.Newfid)
		case Twrite:
			require.Equal(t, in.Data, out.Data)
		case Tflush:
			require.Equal(t, in.Oldtag, out.Oldtag)
		case Tauth:
			require.Equal(t, in.Afid, out.Afid)
			require.Equal(t, in.Uname, out.Uname)
			require.Equal(t, in.Aname, out.Aname)
		}
	}
}

func TestEncodeResponses(t *testing.T) {
	r := &Fcall{Type: Rerror, Tag: 9, Ename: "no such file"}
	buf := make([]byte, 256)
	n, err := Default9P2000.Encode(r, buf)
	require.NoError(t, err)
	require.Equal(t, Rerror, MType(buf[4]))
	require.Greater(t, n, 0)
}

func TestEncodeStatRoundTrip(t *testing.T) {
	d := Dir{
		Qid:    Qid{Path: 42, Vers: 1, Type: 0},
		Mode:   0644,
		Length: 123,
		Name:   "foo",
		Uid:    "glenda",
		Gid:    "glenda",
		Muid:   "glenda",
	}
	enc := EncodeStat(d)
	got, err := DecodeStat(enc)
	require.NoError(t, err)
	require.Equal(t, d.Qid, got.Qid)
	require.Equal(t, d.Name, got.Name)
	require.Equal(t, d.Length, got.Length)
}

func TestDecodeShortMessageFails(t *testing.T) {
	_, err := Default9P2000.Decode([]byte{})
	require.Error(t, err)
}
