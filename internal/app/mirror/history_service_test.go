package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type fakeReader struct {
	limit  int
	runs   map[string]domain.Run
	events map[string][]domain.RunEvent
}

func (f *fakeReader) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	f.limit = limit
	var out []domain.Run
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeReader) GetRun(ctx context.Context, id string) (domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return domain.Run{}, domain.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeReader) ListEvents(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	return f.events[runID], nil
}

func TestRunsDefaultsLimit(t *testing.T) {
	reader := &fakeReader{}
	if _, err := NewHistoryService(reader).Runs(context.Background(), 0); err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if reader.limit != DefaultHistoryLimit {
		t.Fatalf("expected limit %d, got %d", DefaultHistoryLimit, reader.limit)
	}
}

func TestRunLoadsEvents(t *testing.T) {
	reader := &fakeReader{
		runs:   map[string]domain.Run{"01A": {ID: "01A", Channel: "core"}},
		events: map[string][]domain.RunEvent{"01A": {{RunID: "01A", Seq: 1, Kind: "pass_started"}}},
	}

	detail, err := NewHistoryService(reader).Run(context.Background(), " 01A ")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if detail.Run.Channel != "core" || len(detail.Events) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestRunNotFound(t *testing.T) {
	svc := NewHistoryService(&fakeReader{runs: map[string]domain.Run{}})
	for _, id := range []string{"", "missing"} {
		if _, err := svc.Run(context.Background(), id); !errors.Is(err, domain.ErrRunNotFound) {
			t.Fatalf("expected ErrRunNotFound for %q, got %v", id, err)
		}
	}
}
