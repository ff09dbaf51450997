package mirror

import (
	"context"

	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type ChannelStatus struct {
	Result reconcile.Result
	Err    error
}

// StatusService reports drift without repairing anything.
type StatusService struct {
	engine Reconciler
}

func NewStatusService(engine Reconciler) *StatusService {
	return &StatusService{engine: engine}
}

// Status inspects every channel. Per-channel failures are reported in the
// result; only cancellation aborts the walk.
func (s *StatusService) Status(ctx context.Context, channels []domain.Channel, sink reconcile.Sink) ([]ChannelStatus, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	statuses := make([]ChannelStatus, 0, len(channels))
	for _, channel := range channels {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}
		result, err := s.engine.Inspect(ctx, channel, sink)
		statuses = append(statuses, ChannelStatus{Result: result, Err: err})
	}
	return statuses, nil
}
