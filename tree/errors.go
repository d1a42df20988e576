package tree

import "errors"

var (
	errNotDir     = errors.New("not a directory")
	errNotFound   = errors.New("file not found")
	errExists     = errors.New("file already exists")
	errPermission = errors.New("permission denied")
)
