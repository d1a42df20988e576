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
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// readMessage performs a framed read of exactly one 9P2000 message,
// holding rlock for the duration (spec.md §4.1, C1). The returned slice
// is freshly allocated and owned by the caller.
func (srv *Srv) readMessage() ([]byte, error) {
	srv.rlock.Lock()
	defer srv.rlock.Unlock()

	var szBuf [4]byte
	if _, err := io.ReadFull(srv.in, szBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}

	sz := binary.LittleEndian.Uint32(szBuf[:])
	if sz < 4 {
		return nil, errors.Errorf("ninesrv: implausible message size %d", sz)
	}

	body := make([]byte, sz-4)
	if _, err := io.ReadFull(srv.in, body); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}

	return body, nil
}

// writeMessage holds wlock across the single write syscall for buf,
// which must already include the leading 4-byte size prefix (spec.md
// §4.1). Short writes are logged, not retried: the stream is considered
// broken and the next read will observe it.
func (srv *Srv) writeMessage(buf []byte) error {
	srv.wlock.Lock()
	defer srv.wlock.Unlock()

	n, err := srv.out.Write(buf)
	if err != nil {
		return errors.Wrap(err, "ninesrv: write")
	}
	if n != len(buf) {
		srv.logger.Warnf("ninesrv: short write: wrote %d of %d bytes", n, len(buf))
		return errors.Errorf("ninesrv: short write: wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

// changeMsize acquires both rlock and wlock and updates the
// connection's negotiated message size. It is only ever called by
// sversion after a successful version exchange (spec.md §4.1) and is
// idempotent when n already matches the current size. Response buffers
// are taken per message from srv.bufs (see encodeResponse), so there is
// nothing else to resize.
func (srv *Srv) changeMsize(n uint32) {
	srv.rlock.Lock()
	defer srv.rlock.Unlock()
	srv.wlock.Lock()
	defer srv.wlock.Unlock()

	srv.msize = n
}
