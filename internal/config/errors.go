package config

import "errors"

var (
	ErrConfigNotFound       = errors.New("config file not found")
	ErrNoChannels           = errors.New("no channels configured")
	ErrDuplicateChannel     = errors.New("duplicate channel")
	ErrUnknownChannel       = errors.New("unknown channel")
	ErrInvalidMaxPasses     = errors.New("max_passes must be at least 1")
	ErrInvalidRetryDelay    = errors.New("invalid retry_delay")
	ErrUnknownTargetChannel = errors.New("publish target references unknown channel")
)
