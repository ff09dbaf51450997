package publish

import "errors"

var ErrPublishTargetMissing = errors.New("publish target missing")
var ErrNoTargets = errors.New("no publish targets configured")
