package reconcile

import "errors"

var ErrUnresolvedDrift = errors.New("unresolved drift")
var ErrCacheRootRequired = errors.New("cache root is required")
