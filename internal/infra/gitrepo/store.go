package gitrepo

import (
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	defaultAuthorName  = "pkgmirror"
	defaultAuthorEmail = "pkgmirror@localhost"
)

// Store performs git operations on local working copies with go-git.
type Store struct {
	options StoreOptions
}

type StoreOptions struct {
	AuthorName  string
	AuthorEmail string
	Now         func() time.Time
}

func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(options StoreOptions) *Store {
	if strings.TrimSpace(options.AuthorName) == "" {
		options.AuthorName = defaultAuthorName
	}
	if strings.TrimSpace(options.AuthorEmail) == "" {
		options.AuthorEmail = defaultAuthorEmail
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Store{options: options}
}

func (s *Store) signature() *object.Signature {
	return &object.Signature{
		Name:  s.options.AuthorName,
		Email: s.options.AuthorEmail,
		When:  s.options.Now(),
	}
}
