package mirror

import (
	"context"
	"time"

	"github.com/osvaldoandrade/pkgmirror/internal/app/publish"
	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type Reconciler interface {
	Reconcile(ctx context.Context, channel domain.Channel, opts reconcile.Options) (reconcile.Result, error)
	Inspect(ctx context.Context, channel domain.Channel, sink reconcile.Sink) (reconcile.Result, error)
}

type Journal interface {
	StartRun(ctx context.Context, run domain.Run) error
	FinishRun(ctx context.Context, run domain.Run) error
	Recorder(runID string) reconcile.Sink
}

type JournalReader interface {
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListEvents(ctx context.Context, runID string) ([]domain.RunEvent, error)
}

type Publisher interface {
	Publish(ctx context.Context, date string) (publish.Report, error)
}

type IDGenerator interface {
	NewID() (string, error)
}

type Clock interface {
	Now() time.Time
}
