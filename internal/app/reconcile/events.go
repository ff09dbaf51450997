package reconcile

import (
	"context"
	"log/slog"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type EventKind string

const (
	EventPassStarted    EventKind = "pass_started"
	EventDrift          EventKind = "drift"
	EventRepairStarted  EventKind = "repair_started"
	EventRepairFinished EventKind = "repair_finished"
	EventOrphanRemoved  EventKind = "orphan_removed"
	EventPassFinished   EventKind = "pass_finished"
)

type RepairAction string

const (
	ActionClone  RepairAction = "clone"
	ActionFetch  RepairAction = "fetch"
	ActionSwitch RepairAction = "switch"
)

// Event describes one step of a reconciliation run. Fields that do not apply
// to Kind are left zero.
type Event struct {
	Kind       EventKind
	Channel    domain.Channel
	Pass       int
	Repair     bool
	SubChannel string
	Name       string
	Version    string
	Tag        string
	DriftKind  domain.DriftKind
	Action     RepairAction
	ExitCode   int
	Drifts     int
}

func (e Event) Drift() domain.Drift {
	return domain.Drift{
		Kind:       e.DriftKind,
		SubChannel: e.SubChannel,
		Name:       e.Name,
		Version:    e.Version,
		Tag:        e.Tag,
	}
}

// Attrs returns the populated fields as slog key/value pairs.
func (e Event) Attrs() []any {
	attrs := []any{"channel", e.Channel.String(), "pass", e.Pass}
	switch e.Kind {
	case EventPassStarted:
		attrs = append(attrs, "repair", e.Repair)
	case EventDrift:
		attrs = append(attrs, "kind", string(e.DriftKind), "sub", e.SubChannel, "name", e.Name)
		if e.Version != "" {
			attrs = append(attrs, "version", e.Version)
		}
		if e.DriftKind == domain.DriftMismatched {
			attrs = append(attrs, "tag", e.Tag)
		}
	case EventRepairStarted:
		attrs = append(attrs, "action", string(e.Action), "sub", e.SubChannel, "name", e.Name, "version", e.Version)
	case EventRepairFinished:
		attrs = append(attrs, "action", string(e.Action), "sub", e.SubChannel, "name", e.Name, "exit_code", e.ExitCode)
	case EventOrphanRemoved:
		attrs = append(attrs, "sub", e.SubChannel, "name", e.Name)
	case EventPassFinished:
		attrs = append(attrs, "drifts", e.Drifts)
	}
	return attrs
}

type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// MultiSink fans every event out to each non-nil sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

type discardSink struct{}

func (discardSink) Emit(context.Context, Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) LogSink {
	return LogSink{Logger: logger}
}

func (s LogSink) Emit(ctx context.Context, event Event) {
	if s.Logger == nil {
		return
	}
	level := slog.LevelDebug
	switch event.Kind {
	case EventDrift, EventOrphanRemoved:
		level = slog.LevelInfo
	case EventRepairFinished:
		if event.ExitCode != 0 {
			level = slog.LevelWarn
		}
	case EventPassFinished:
		level = slog.LevelInfo
	}
	s.Logger.Log(ctx, level, string(event.Kind), event.Attrs()...)
}
