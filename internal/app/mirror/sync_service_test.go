package mirror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/osvaldoandrade/pkgmirror/internal/app/publish"
	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

type fakeEngine struct {
	results map[string]reconcile.Result
	errs    map[string]error
	calls   []string
	opts    []reconcile.Options
}

func (f *fakeEngine) Reconcile(ctx context.Context, channel domain.Channel, opts reconcile.Options) (reconcile.Result, error) {
	f.calls = append(f.calls, channel.Name)
	f.opts = append(f.opts, opts)
	if opts.Sink != nil {
		opts.Sink.Emit(ctx, reconcile.Event{Kind: reconcile.EventPassStarted, Channel: channel, Pass: 1})
	}
	result := f.results[channel.Name]
	result.Channel = channel
	return result, f.errs[channel.Name]
}

func (f *fakeEngine) Inspect(ctx context.Context, channel domain.Channel, sink reconcile.Sink) (reconcile.Result, error) {
	f.calls = append(f.calls, "inspect "+channel.Name)
	result := f.results[channel.Name]
	result.Channel = channel
	return result, f.errs[channel.Name]
}

type fakeJournal struct {
	started  []domain.Run
	finished []domain.Run
	events   map[string][]reconcile.Event
	startErr error
}

func (f *fakeJournal) StartRun(ctx context.Context, run domain.Run) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, run)
	return nil
}

func (f *fakeJournal) FinishRun(ctx context.Context, run domain.Run) error {
	f.finished = append(f.finished, run)
	return nil
}

func (f *fakeJournal) Recorder(runID string) reconcile.Sink {
	return reconcile.SinkFunc(func(ctx context.Context, event reconcile.Event) {
		if f.events == nil {
			f.events = make(map[string][]reconcile.Event)
		}
		f.events[runID] = append(f.events[runID], event)
	})
}

type fakePublisher struct {
	dates []string
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, date string) (publish.Report, error) {
	f.dates = append(f.dates, date)
	return publish.Report{Date: date}, f.err
}

type sequentialIDs struct {
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("run-%d", s.next), nil
}

var testClock = platform.FixedClock{At: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}

func channels(names ...string) []domain.Channel {
	out := make([]domain.Channel, 0, len(names))
	for _, name := range names {
		out = append(out, domain.NewChannel(name))
	}
	return out
}

func convergedEngine() *fakeEngine {
	return &fakeEngine{
		results: map[string]reconcile.Result{
			"core":  {Converged: true, Passes: 1, SnapshotDate: "20240301", SnapshotDigest: "aaa"},
			"extra": {Converged: true, Passes: 2, SnapshotDate: "20240301", Drifts: []domain.Drift{{Kind: domain.DriftMissing}}},
		},
		errs: map[string]error{},
	}
}

func TestSyncJournalsEveryChannelAndPublishes(t *testing.T) {
	engine := convergedEngine()
	journal := &fakeJournal{}
	publisher := &fakePublisher{}
	svc := NewSyncService(engine, journal, publisher, &sequentialIDs{}, testClock, nil)

	report, err := svc.Sync(context.Background(), channels("core", "extra"), SyncOptions{Push: true})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if !report.Published || len(publisher.dates) != 1 || publisher.dates[0] != "20240301" {
		t.Fatalf("expected a single publish for 20240301, got %+v", publisher.dates)
	}
	if len(engine.calls) != 2 || engine.calls[0] != "core" || engine.calls[1] != "extra" {
		t.Fatalf("expected channels in order, got %v", engine.calls)
	}
	for _, opts := range engine.opts {
		if !opts.Repair {
			t.Fatalf("expected repairing reconciliation")
		}
	}

	if len(journal.started) != 2 || journal.started[0].ID != "run-1" || journal.started[1].Channel != "extra" {
		t.Fatalf("unexpected started runs %+v", journal.started)
	}
	if len(journal.finished) != 2 || journal.finished[1].Status != domain.RunConverged || journal.finished[1].Drifts != 1 {
		t.Fatalf("unexpected finished runs %+v", journal.finished)
	}
	if journal.finished[0].SnapshotDigest != "aaa" {
		t.Fatalf("expected digest recorded, got %+v", journal.finished[0])
	}
	if len(journal.events["run-1"]) != 1 || len(journal.events["run-2"]) != 1 {
		t.Fatalf("expected recorder in the sink fan-out, got %+v", journal.events)
	}
}

func TestSyncSkipsPublishingWhenAChannelFails(t *testing.T) {
	engine := convergedEngine()
	engine.results["core"] = reconcile.Result{Passes: 10}
	engine.errs["core"] = fmt.Errorf("%w: core after 10 passes", reconcile.ErrUnresolvedDrift)
	journal := &fakeJournal{}
	publisher := &fakePublisher{}
	svc := NewSyncService(engine, journal, publisher, &sequentialIDs{}, testClock, nil)

	report, err := svc.Sync(context.Background(), channels("core", "extra"), SyncOptions{Push: true})
	if !errors.Is(err, ErrChannelsNotConverged) {
		t.Fatalf("expected ErrChannelsNotConverged, got %v", err)
	}
	if len(engine.calls) != 2 {
		t.Fatalf("expected extra to run after core failed, got %v", engine.calls)
	}
	if len(publisher.dates) != 0 || report.Published {
		t.Fatalf("expected no publishing")
	}
	if len(report.Failed) != 1 || report.Failed[0] != "core" {
		t.Fatalf("unexpected failed channels %v", report.Failed)
	}
	if journal.finished[0].Status != domain.RunUnresolved || journal.finished[0].Error == "" {
		t.Fatalf("expected unresolved run with error, got %+v", journal.finished[0])
	}
}

func TestSyncRecordsSnapshotFailure(t *testing.T) {
	engine := convergedEngine()
	engine.errs["extra"] = errors.New("wget failed")
	journal := &fakeJournal{}
	svc := NewSyncService(engine, journal, nil, &sequentialIDs{}, testClock, nil)

	report, err := svc.Sync(context.Background(), channels("core", "extra"), SyncOptions{})
	if !errors.Is(err, ErrChannelsNotConverged) {
		t.Fatalf("expected ErrChannelsNotConverged, got %v", err)
	}
	if report.Channels[1].Status() != domain.RunFailed || journal.finished[1].Status != domain.RunFailed {
		t.Fatalf("expected failed status, got %+v", journal.finished[1])
	}
}

func TestSyncWithoutJournal(t *testing.T) {
	svc := NewSyncService(convergedEngine(), nil, nil, &sequentialIDs{}, testClock, nil)

	report, err := svc.Sync(context.Background(), channels("core"), SyncOptions{})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if report.Published || !report.Converged() || report.Channels[0].RunID != "run-1" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSyncContinuesWhenJournalStartFails(t *testing.T) {
	journal := &fakeJournal{startErr: errors.New("disk full")}
	svc := NewSyncService(convergedEngine(), journal, nil, &sequentialIDs{}, testClock, nil)

	if _, err := svc.Sync(context.Background(), channels("core"), SyncOptions{}); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(journal.finished) != 0 {
		t.Fatalf("expected no finish for unstarted run, got %+v", journal.finished)
	}
}

func TestSyncPushRequiresPublisher(t *testing.T) {
	svc := NewSyncService(convergedEngine(), nil, nil, &sequentialIDs{}, testClock, nil)
	if _, err := svc.Sync(context.Background(), channels("core"), SyncOptions{Push: true}); !errors.Is(err, ErrPublishNotConfigured) {
		t.Fatalf("expected ErrPublishNotConfigured, got %v", err)
	}
}

func TestSyncRequiresChannels(t *testing.T) {
	svc := NewSyncService(convergedEngine(), nil, nil, &sequentialIDs{}, testClock, nil)
	if _, err := svc.Sync(context.Background(), nil, SyncOptions{}); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("expected ErrNoChannels, got %v", err)
	}
}

func TestSyncPublishFailure(t *testing.T) {
	boom := errors.New("push rejected")
	svc := NewSyncService(convergedEngine(), nil, &fakePublisher{err: boom}, &sequentialIDs{}, testClock, nil)

	report, err := svc.Sync(context.Background(), channels("core"), SyncOptions{Push: true})
	if !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if report.Published {
		t.Fatalf("expected Published=false")
	}
}
