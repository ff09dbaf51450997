package domain

import (
	"fmt"
	"strings"
)

const (
	DefaultArchitecture = "x86_64"
	DefaultHost         = "https://geo.mirror.pkgbuild.com"

	testingSuffix = "-testing"
	stagingSuffix = "-staging"
)

// Channel is an upstream package collection mirrored locally together with
// its testing and staging variants. Name and Architecture form its identity.
type Channel struct {
	Name         string
	Architecture string
	Host         string
}

func NewChannel(name string) Channel {
	return Channel{
		Name:         name,
		Architecture: DefaultArchitecture,
		Host:         DefaultHost,
	}.WithDefaults()
}

func (c Channel) WithDefaults() Channel {
	c.Name = strings.TrimSpace(c.Name)
	if strings.TrimSpace(c.Architecture) == "" {
		c.Architecture = DefaultArchitecture
	}
	c.Host = strings.TrimSuffix(strings.TrimSpace(c.Host), "/")
	if c.Host == "" {
		c.Host = DefaultHost
	}
	return c
}

func (c Channel) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrChannelNameRequired
	}
	if !IsValidPathName(c.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, c.Name)
	}
	if !IsValidPathName(c.Architecture) {
		return fmt.Errorf("%w: %q", ErrInvalidArchitecture, c.Architecture)
	}
	return nil
}

// Key identifies the channel across architectures.
func (c Channel) Key() string {
	return c.Name + "/" + c.Architecture
}

// SubChannels returns the plain, testing and staging variants in pass order.
func (c Channel) SubChannels() []string {
	return []string{c.Name, c.Testing(), c.Staging()}
}

func (c Channel) Testing() string {
	return c.Name + testingSuffix
}

func (c Channel) Staging() string {
	return c.Name + stagingSuffix
}

func (c Channel) String() string {
	if c.Architecture == DefaultArchitecture {
		return c.Name
	}
	return c.Name + " (" + c.Architecture + ")"
}

func IsValidPathName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}
