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

// Package ninesrv implements the server-side request lifecycle of the
// 9P2000 file protocol: per-connection fid and tag tables, the
// validation and dispatch of the 13 request types, asynchronous flush
// completion, and an elastic worker pool.
//
// The primary elements of interest are:
//
//   - Srv, the connection-level state machine created with New and run
//     with Serve.
//
//   - Config, which wires in the collaborators this package does not
//     implement itself: the wire codec (see package wire), the file
//     tree (see package tree or supply your own ninesrv.FileTree), and
//     the optional per-request-type callbacks.
//
//   - ninesrvutil.FillDefaults, which fills some of a Config's nil
//     callbacks with defaults so unimplemented operations answer with
//     a protocol error rather than a crash.
//
// This package does not implement a 9P client, a transport beyond a
// pair of byte streams, or authentication policy; see spec.md/
// SPEC_FULL.md for the full list of external collaborators.
package ninesrv
