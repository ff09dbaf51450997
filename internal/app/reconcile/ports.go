package reconcile

import (
	"context"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type SnapshotSource interface {
	Load(ctx context.Context, channel domain.Channel) (domain.Snapshot, error)
}

// RepoClient clones, switches and fetches package repositories. Exit codes
// are reported, never interpreted: the next pass re-validates the tree.
type RepoClient interface {
	Clone(ctx context.Context, repoDir, name, version string, attempts int) int
	Fetch(ctx context.Context, pkgDir string, attempts int) int
}

type TagReader interface {
	CurrentTag(ctx context.Context, dir string) (string, error)
}

type Sink interface {
	Emit(ctx context.Context, event Event)
}
