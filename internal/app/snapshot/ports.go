package snapshot

import (
	"context"
	"time"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

// Provider materializes upstream package metadata for a channel.
type Provider interface {
	Import(ctx context.Context, channel domain.Channel) error
	Packages(ctx context.Context, channel domain.Channel, subChannel string) ([]domain.PackageRecord, error)
}

type Cache interface {
	Read(ctx context.Context, path string) (map[string][]domain.PackageRecord, []byte, error)
	Write(ctx context.Context, path string, packages map[string][]domain.PackageRecord) ([]byte, error)
}

type Digester interface {
	Digest(ctx context.Context, input []byte) (string, error)
}

type Differ interface {
	MergeDiff(ctx context.Context, original, modified []byte) ([]byte, error)
}

type Clock interface {
	Now() time.Time
}
