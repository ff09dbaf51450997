package snapshot

import "errors"

var ErrSnapshotNotFound = errors.New("snapshot not cached")
var ErrInvalidDate = errors.New("invalid snapshot date")
