package mirror

import (
	"context"
	"strings"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

const DefaultHistoryLimit = 20

type RunDetail struct {
	Run    domain.Run
	Events []domain.RunEvent
}

type HistoryService struct {
	journal JournalReader
}

func NewHistoryService(journal JournalReader) *HistoryService {
	return &HistoryService{journal: journal}
}

func (s *HistoryService) Runs(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.journal.ListRuns(ctx, limit)
}

func (s *HistoryService) Run(ctx context.Context, id string) (RunDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return RunDetail{}, domain.ErrRunNotFound
	}
	run, err := s.journal.GetRun(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	events, err := s.journal.ListEvents(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Run: run, Events: events}, nil
}
