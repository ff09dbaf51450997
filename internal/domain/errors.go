package domain

import "errors"

var ErrChannelNameRequired = errors.New("channel name is required")
var ErrInvalidChannelName = errors.New("invalid channel name")
var ErrInvalidArchitecture = errors.New("invalid architecture")
var ErrRunNotFound = errors.New("run not found")
