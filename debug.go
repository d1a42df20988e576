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
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the *logrus.Logger a Config.Logger is typically set
// to: structured, leveled output that stays silent unless debug is
// requested, generalizing the teacher's flag-gated "fuse.debug"
// logger. The package logs only a few events through it (dropped
// unparseable messages, failed response writes and encodes, failed
// worker spawns), without per-request fields.
func NewLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetOutput(io.Discard)
	}
	return logger
}
