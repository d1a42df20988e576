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

// Package wire defines the 9P2000 message data model and the pluggable
// codec that translates between bytes on the wire and Fcall values. The
// codec itself is the external collaborator referenced throughout
// package ninesrv: the engine only depends on the Codec interface.
package wire

import (
	"encoding/binary"

	"github.com/Harvey-OS/ninep/protocol"
	"github.com/pkg/errors"
)

// Re-exported wire constants, grounded on the vendored 9P implementation
// in github.com/Harvey-OS/ninep/protocol rather than re-derived from
// prose.
const (
	NOFID   = uint32(protocol.NOFID)
	NOTAG   = uint16(protocol.NOTAG)
	IOHDRSZ = protocol.IOHDRSZ

	OREAD   = protocol.OREAD
	OWRITE  = protocol.OWRITE
	ORDWR   = protocol.ORDWR
	OEXEC   = protocol.OEXEC
	OTRUNC  = protocol.OTRUNC
	ORCLOSE = protocol.ORCLOSE

	QTDIR    = protocol.QTDIR
	QTAPPEND = protocol.QTAPPEND
	QTEXCL   = protocol.QTEXCL
	QTAUTH   = protocol.QTAUTH
	QTTMP    = protocol.QTTMP

	DMDIR    = protocol.DMDIR
	DMAPPEND = protocol.DMAPPEND
	DMEXCL   = protocol.DMEXCL
	DMTMP    = protocol.DMTMP

	AREAD  = 0x4
	AWRITE = 0x2
	AEXEC  = 0x1
	AOTH   = 0x8
)

// Wstat "don't touch" sentinels: a client sets a Dir field to one of
// these to mean "leave this field alone" rather than a literal value
// to apply (spec.md §4.3, srv.c:700-726).
const (
	NoTouchPath    = ^uint64(0)
	NoTouchVers    = ^uint32(0)
	NoTouchMode    = ^uint32(0)
	NoTouchQidType = ^uint8(0)
)

// MType is the 9P2000 message type discriminant.
type MType = protocol.MType

const (
	Tversion = protocol.Tversion
	Rversion = protocol.Rversion
	Tauth    = protocol.Tauth
	Rauth    = protocol.Rauth
	Tattach  = protocol.Tattach
	Rattach  = protocol.Rattach
	Tflush   = protocol.Tflush
	Rflush   = protocol.Rflush
	Twalk    = protocol.Twalk
	Rwalk    = protocol.Rwalk
	Topen    = protocol.Topen
	Ropen    = protocol.Ropen
	Tcreate  = protocol.Tcreate
	Rcreate  = protocol.Rcreate
	Tread    = protocol.Tread
	Rread    = protocol.Rread
	Twrite   = protocol.Twrite
	Rwrite   = protocol.Rwrite
	Tclunk   = protocol.Tclunk
	Rclunk   = protocol.Rclunk
	Tremove  = protocol.Tremove
	Rremove  = protocol.Rremove
	Tstat    = protocol.Tstat
	Rstat    = protocol.Rstat
	Twstat   = protocol.Twstat
	Rwstat   = protocol.Rwstat
	Rerror   = protocol.Rerror
)

// Qid is a file's 13-byte wire identity.
type Qid struct {
	Path uint64
	Vers uint32
	Type uint8
}

// Dir is the decoded form of a stat/wstat payload.
type Dir struct {
	Qid    Qid
	Mode   uint32
	Atime  uint32
	Mtime  uint32
	Length uint64
	Name   string
	Uid    string
	Gid    string
	Muid   string
}

// Fcall is a tagged union over the 13 request and 13 response variants,
// per spec.md §3. Only the fields relevant to Type are meaningful.
type Fcall struct {
	Type MType
	Tag  uint16
	Fid  uint32

	Msize   uint32
	Version string

	Afid  uint32
	Uname string
	Aname string

	Oldtag uint16

	Newfid uint32
	Wname  []string

	Mode uint8

	Name string
	Perm uint32

	Offset uint64
	Count  uint32
	Data   []byte

	Stat  []byte
	Dir   Dir

	Qid    Qid
	Wqid   []Qid
	Iounit uint32
	Ename  string
}

// Codec translates between wire bytes and Fcall values. It is the
// external wire-marshaling collaborator spec.md places out of scope;
// ninesrv only ever depends on this interface.
type Codec interface {
	// Decode parses one complete 9P2000 message (without the leading
	// 4-byte size prefix, which the caller has already consumed to learn
	// the frame length).
	Decode(b []byte) (*Fcall, error)

	// Encode serializes f into out, returning the number of bytes
	// written (including the 4-byte size prefix). It returns an error
	// only for a calling-convention mistake (out too small); a valid
	// Fcall with a sufficiently large out always succeeds.
	Encode(f *Fcall, out []byte) (int, error)
}

// Default9P2000 is the reference Codec implementation, a little-endian
// binary encoding matching the Plan 9 9P2000 wire format (spec.md §6).
var Default9P2000 Codec = codec9p{}

type codec9p struct{}

var errShortMessage = errors.New("9P2000: message too short")
var errBufferTooSmall = errors.New("9P2000: output buffer too small")

func (codec9p) Decode(b []byte) (*Fcall, error) {
	if len(b) < 3 {
		return nil, errShortMessage
	}
	f := &Fcall{
		Type: MType(b[0]),
		Tag:  binary.LittleEndian.Uint16(b[1:3]),
	}
	p := b[3:]

	readU8 := func() (uint8, bool) {
		if len(p) < 1 {
			return 0, false
		}
		v := p[0]
		p = p[1:]
		return v, true
	}
	readU32 := func() (uint32, bool) {
		if len(p) < 4 {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(p)
		p = p[4:]
		return v, true
	}
	readU64 := func() (uint64, bool) {
		if len(p) < 8 {
			return 0, false
		}
		v := binary.LittleEndian.Uint64(p)
		p = p[8:]
		return v, true
	}
	readU16 := func() (uint16, bool) {
		if len(p) < 2 {
			return 0, false
		}
		v := binary.LittleEndian.Uint16(p)
		p = p[2:]
		return v, true
	}
	readStr := func() (string, bool) {
		n, ok := readU16()
		if !ok || len(p) < int(n) {
			return "", false
		}
		s := string(p[:n])
		p = p[n:]
		return s, true
	}
	readQid := func() (Qid, bool) {
		var q Qid
		typ, ok := readU8()
		if !ok {
			return q, false
		}
		vers, ok := readU32()
		if !ok {
			return q, false
		}
		path, ok := readU64()
		if !ok {
			return q, false
		}
		q.Type, q.Vers, q.Path = typ, vers, path
		return q, true
	}

	ok := true
	switch f.Type {
	case Tversion:
		f.Msize, ok = readU32()
		if ok {
			f.Version, ok = readStr()
		}
	case Tattach:
		f.Fid, ok = readU32()
		if ok {
			f.Afid, ok = readU32()
		}
		if ok {
			f.Uname, ok = readStr()
		}
		if ok {
			f.Aname, ok = readStr()
		}
	case Tflush:
		f.Oldtag, ok = readU16()
	case Twalk:
		f.Fid, ok = readU32()
		if ok {
			f.Newfid, ok = readU32()
		}
		var nwname uint16
		if ok {
			nwname, ok = readU16()
		}
		for i := uint16(0); ok && i < nwname; i++ {
			var name string
			name, ok = readStr()
			if ok {
				f.Wname = append(f.Wname, name)
			}
		}
	case Topen:
		f.Fid, ok = readU32()
		if ok {
			f.Mode, ok = readU8()
		}
	case Tcreate:
		f.Fid, ok = readU32()
		if ok {
			f.Name, ok = readStr()
		}
		if ok {
			f.Perm, ok = readU32()
		}
		if ok {
			f.Mode, ok = readU8()
		}
	case Tread:
		f.Fid, ok = readU32()
		if ok {
			f.Offset, ok = readU64()
		}
		if ok {
			f.Count, ok = readU32()
		}
	case Twrite:
		f.Fid, ok = readU32()
		if ok {
			f.Offset, ok = readU64()
		}
		var count uint32
		if ok {
			count, ok = readU32()
		}
		if ok && len(p) >= int(count) {
			f.Data = p[:count]
			f.Count = count
		} else if ok {
			ok = false
		}
	case Tauth:
		f.Afid, ok = readU32()
		if ok {
			f.Uname, ok = readStr()
		}
		if ok {
			f.Aname, ok = readStr()
		}
	case Tclunk, Tremove, Tstat:
		f.Fid, ok = readU32()
	case Twstat:
		f.Fid, ok = readU32()
		var n uint16
		if ok {
			n, ok = readU16()
		}
		if ok && len(p) >= int(n) {
			f.Stat = p[:n]
		} else if ok {
			ok = false
		}
	default:
		// Response types are never decoded by the server side.
	}

	if !ok {
		return nil, errShortMessage
	}
	_ = readQid
	return f, nil
}

func (codec9p) Encode(f *Fcall, out []byte) (int, error) {
	p := out[:0]
	appendU8 := func(v uint8) { p = append(p, v) }
	appendU16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		p = append(p, b[:]...)
	}
	appendU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		p = append(p, b[:]...)
	}
	appendU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		p = append(p, b[:]...)
	}
	appendStr := func(s string) {
		appendU16(uint16(len(s)))
		p = append(p, s...)
	}
	appendQid := func(q Qid) {
		appendU8(q.Type)
		appendU32(q.Vers)
		appendU64(q.Path)
	}

	// Reserve the 4-byte size prefix, type, tag.
	appendU32(0)
	appendU8(uint8(f.Type))
	appendU16(f.Tag)

	if f.Type == Rerror {
		appendStr(f.Ename)
	} else {
		switch f.Type {
		case Rversion:
			appendU32(f.Msize)
			appendStr(f.Version)
		case Rauth, Rattach:
			appendQid(f.Qid)
		case Rflush:
			// no body
		case Rwalk:
			appendU16(uint16(len(f.Wqid)))
			for _, q := range f.Wqid {
				appendQid(q)
			}
		case Ropen, Rcreate:
			appendQid(f.Qid)
			appendU32(f.Iounit)
		case Rread:
			appendU32(uint32(len(f.Data)))
			p = append(p, f.Data...)
		case Rwrite:
			appendU32(f.Count)
		case Rclunk, Rremove, Rwstat:
			// no body
		case Rstat:
			appendU16(uint16(len(f.Stat)))
			p = append(p, f.Stat...)

		// The server never emits these itself, but encoding them too
		// makes the codec usable by test harnesses and by any client
		// built against this same package.
		case Tversion:
			appendU32(f.Msize)
			appendStr(f.Version)
		case Tattach:
			appendU32(f.Fid)
			appendU32(f.Afid)
			appendStr(f.Uname)
			appendStr(f.Aname)
		case Tflush:
			appendU16(f.Oldtag)
		case Twalk:
			appendU32(f.Fid)
			appendU32(f.Newfid)
			appendU16(uint16(len(f.Wname)))
			for _, name := range f.Wname {
				appendStr(name)
			}
		case Topen:
			appendU32(f.Fid)
			appendU8(f.Mode)
		case Tcreate:
			appendU32(f.Fid)
			appendStr(f.Name)
			appendU32(f.Perm)
			appendU8(f.Mode)
		case Tread:
			appendU32(f.Fid)
			appendU64(f.Offset)
			appendU32(f.Count)
		case Twrite:
			appendU32(f.Fid)
			appendU64(f.Offset)
			appendU32(uint32(len(f.Data)))
			p = append(p, f.Data...)
		case Tauth:
			appendU32(f.Afid)
			appendStr(f.Uname)
			appendStr(f.Aname)
		case Tclunk, Tremove, Tstat:
			appendU32(f.Fid)
		case Twstat:
			appendU32(f.Fid)
			appendU16(uint16(len(f.Stat)))
			p = append(p, f.Stat...)
		}
	}

	if len(p) > len(out) {
		return 0, errBufferTooSmall
	}
	binary.LittleEndian.PutUint32(p[0:4], uint32(len(p)))
	copy(out, p)
	return len(p), nil
}

// EncodeStat encodes a Dir into the inline stat representation used by
// Rstat/Twstat payloads (spec.md §4.3, T-stat/T-wstat). Mirrors the
// external codec's convD2M in the original C library.
func EncodeStat(d Dir) []byte {
	buf := make([]byte, 0, 128)
	appendU16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU8 := func(v uint8) { buf = append(buf, v) }
	appendStr := func(s string) {
		appendU16(uint16(len(s)))
		buf = append(buf, s...)
	}

	// placeholder for the leading size[2] field, as convD2M writes it
	appendU16(0)
	appendU16(0) // type[2], unused by this engine
	appendU32(0) // dev[4], unused by this engine
	appendU8(d.Qid.Type)
	appendU32(d.Qid.Vers)
	appendU64(d.Qid.Path)
	appendU32(d.Mode)
	appendU32(d.Atime)
	appendU32(d.Mtime)
	appendU64(d.Length)
	appendStr(d.Name)
	appendStr(d.Uid)
	appendStr(d.Gid)
	appendStr(d.Muid)

	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)-2))
	return buf
}

// DecodeStat decodes the inline stat representation produced by
// EncodeStat, for T-wstat.
func DecodeStat(b []byte) (Dir, error) {
	var d Dir
	if len(b) < 2 {
		return d, errShortMessage
	}
	p := b[2:] // skip the leading size field
	readU8 := func() (uint8, bool) {
		if len(p) < 1 {
			return 0, false
		}
		v := p[0]
		p = p[1:]
		return v, true
	}
	readU16 := func() (uint16, bool) {
		if len(p) < 2 {
			return 0, false
		}
		v := binary.LittleEndian.Uint16(p)
		p = p[2:]
		return v, true
	}
	readU32 := func() (uint32, bool) {
		if len(p) < 4 {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(p)
		p = p[4:]
		return v, true
	}
	readU64 := func() (uint64, bool) {
		if len(p) < 8 {
			return 0, false
		}
		v := binary.LittleEndian.Uint64(p)
		p = p[8:]
		return v, true
	}
	readStr := func() (string, bool) {
		n, ok := readU16()
		if !ok || len(p) < int(n) {
			return "", false
		}
		s := string(p[:n])
		p = p[n:]
		return s, true
	}

	ok := true
	_, ok = readU16() // type[2], unused by this engine
	if ok {
		_, ok = readU32() // dev[4]
	}
	if ok {
		d.Qid.Type, ok = readU8()
	}
	if ok {
		d.Qid.Vers, ok = readU32()
	}
	if ok {
		d.Qid.Path, ok = readU64()
	}
	if ok {
		d.Mode, ok = readU32()
	}
	if ok {
		d.Atime, ok = readU32()
	}
	if ok {
		d.Mtime, ok = readU32()
	}
	if ok {
		d.Length, ok = readU64()
	}
	if ok {
		d.Name, ok = readStr()
	}
	if ok {
		d.Uid, ok = readStr()
	}
	if ok {
		d.Gid, ok = readStr()
	}
	if ok {
		d.Muid, ok = readStr()
	}
	if !ok {
		return Dir{}, errShortMessage
	}
	return d, nil
}
