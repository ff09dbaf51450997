package mirror

import "errors"

var ErrChannelsNotConverged = errors.New("channels not converged")
var ErrNoChannels = errors.New("no channels to sync")
var ErrPublishNotConfigured = errors.New("publishing is not configured")
