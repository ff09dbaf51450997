package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osvaldoandrade/pkgmirror/internal/app/publish"
	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

type SyncOptions struct {
	Push bool
	Sink reconcile.Sink
}

type ChannelReport struct {
	RunID  string
	Result reconcile.Result
	Err    error
}

func (r ChannelReport) Status() domain.RunStatus {
	switch {
	case r.Err == nil && r.Result.Converged:
		return domain.RunConverged
	case errors.Is(r.Err, reconcile.ErrUnresolvedDrift):
		return domain.RunUnresolved
	default:
		return domain.RunFailed
	}
}

type SyncReport struct {
	Channels  []ChannelReport
	Failed    []string
	Published bool
	Publish   publish.Report
}

func (r SyncReport) Converged() bool {
	return len(r.Failed) == 0
}

// SyncService reconciles channels one after another and publishes the cache
// tree once all of them converged.
type SyncService struct {
	engine    Reconciler
	journal   Journal
	publisher Publisher
	ids       IDGenerator
	clock     Clock
	logger    *slog.Logger
}

// NewSyncService wires the sync flow. journal and publisher may be nil.
func NewSyncService(engine Reconciler, journal Journal, publisher Publisher, ids IDGenerator, clock Clock, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = platform.DiscardLogger()
	}
	if clock == nil {
		clock = platform.RealClock{}
	}
	return &SyncService{
		engine:    engine,
		journal:   journal,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}
}

func (s *SyncService) Sync(ctx context.Context, channels []domain.Channel, opts SyncOptions) (SyncReport, error) {
	if err := ctx.Err(); err != nil {
		return SyncReport{}, err
	}
	if len(channels) == 0 {
		return SyncReport{}, ErrNoChannels
	}
	if opts.Push && s.publisher == nil {
		return SyncReport{}, ErrPublishNotConfigured
	}

	var report SyncReport
	for _, channel := range channels {
		channelReport, err := s.syncChannel(ctx, channel, opts.Sink)
		if err != nil {
			return report, err
		}
		report.Channels = append(report.Channels, channelReport)
		if channelReport.Err != nil {
			report.Failed = append(report.Failed, channel.String())
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
		}
	}

	if !report.Converged() {
		if opts.Push {
			s.logger.Warn("publishing skipped", "failed", strings.Join(report.Failed, ", "))
		}
		return report, fmt.Errorf("%w: %s", ErrChannelsNotConverged, strings.Join(report.Failed, ", "))
	}
	if !opts.Push {
		return report, nil
	}

	date := report.Channels[0].Result.SnapshotDate
	if date == "" {
		date = platform.FormatDate(s.clock.Now())
	}
	published, err := s.publisher.Publish(ctx, date)
	report.Publish = published
	if err != nil {
		return report, fmt.Errorf("publish: %w", err)
	}
	report.Published = true
	return report, nil
}

// syncChannel runs one journaled reconciliation. Only a failure to allocate a
// run id is returned as an error; reconciliation failures land in the report.
func (s *SyncService) syncChannel(ctx context.Context, channel domain.Channel, sink reconcile.Sink) (ChannelReport, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return ChannelReport{}, fmt.Errorf("allocate run id: %w", err)
	}
	logger := s.logger.With("run", runID, "channel", channel.String())

	sinks := reconcile.MultiSink{reconcile.NewLogSink(logger), sink}
	journaled := false
	if s.journal != nil {
		if err := s.journal.StartRun(ctx, domain.Run{ID: runID, Channel: channel.Name, Architecture: channel.Architecture, StartedAt: s.clock.Now()}); err != nil {
			logger.Warn("journal start failed", "err", err)
		} else {
			journaled = true
			sinks = append(sinks, s.journal.Recorder(runID))
		}
	}

	logger.Info("reconciling channel")
	result, err := s.engine.Reconcile(ctx, channel, reconcile.Options{Repair: true, Sink: sinks})
	report := ChannelReport{RunID: runID, Result: result, Err: err}
	if err != nil {
		logger.Error("channel failed", "err", err)
	} else {
		logger.Info("channel converged", "passes", result.Passes, "drifts", len(result.Drifts))
	}

	if journaled {
		run := domain.Run{
			ID:             runID,
			FinishedAt:     s.clock.Now(),
			Status:         report.Status(),
			Passes:         result.Passes,
			Drifts:         len(result.Drifts),
			SnapshotDate:   result.SnapshotDate,
			SnapshotDigest: result.SnapshotDigest,
		}
		if err != nil {
			run.Error = err.Error()
		}
		if err := s.journal.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("journal finish failed", "err", err)
		}
	}
	return report, nil
}
