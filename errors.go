// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package ninesrv

// Error strings returned to the client as Rerror.Ename, matching Plan 9
// convention (spec.md §6). These are the only errors the T-handlers
// produce themselves, before any user callback runs (spec.md §7).
const (
	ErrUnknownFid       = "unknown fid"
	ErrDuplicateFid     = "duplicate fid"
	ErrDuplicateTag     = "duplicate tag"
	ErrBotch            = "9P protocol botch"
	ErrBadOffset        = "bad offset"
	ErrIsDirectory      = "is a directory"
	ErrWalkNondir       = "walk in non-directory"
	ErrCreateNondir     = "create in non-directory"
	ErrPermission       = "permission denied"
	ErrCreateProhibited = "create prohibited"
	ErrWriteProhibited  = "write prohibited"
	ErrRemoveProhibited = "remove prohibited"
	ErrStatProhibited   = "stat prohibited"
	ErrWstatProhibited  = "wstat prohibited"
	ErrFileNotFound     = "file not found"
	ErrBadWstatDir      = "bad directory in wstat"
	ErrNoAuthRequired   = "authentication not required"
	ErrNoCreate         = "create prohibited"
	ErrNoWrite          = "write prohibited"
	ErrNoRemove         = "remove prohibited"
	ErrNoStat           = "stat prohibited"
	ErrNoWstat          = "wstat prohibited"
	ErrMsizeTooSmall    = "version: message size too small"
	ErrFidOpened        = "walk of open fid"
	ErrNotOpenForRead   = "file not open for reading"
	ErrNotOpenForWrite  = "file not open for writing"
	ErrUnusedWalk       = "unused documented feature not implemented"
	ErrNotADirectory    = "not a directory"
	ErrCountNegative    = "negative count"
	ErrUnknownMessage   = "unknown message"

	ErrWstatChangePath      = "wstat -- attempt to change qid.path"
	ErrWstatChangeVers      = "wstat -- attempt to change qid.vers"
	ErrWstatUnknownModeBits = "wstat -- unknown bits in mode"
	ErrWstatModeMismatch    = "wstat -- qid.type/mode mismatch"
	ErrWstatChangeType      = "wstat -- attempt to change qid.type"
)
