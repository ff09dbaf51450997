package snapshot

import (
	"context"

	"github.com/go-json-experiment/json"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type DiffResult struct {
	Channel domain.Channel
	From    string
	To      string
	Patch   []byte
}

type DiffService struct {
	store  *Store
	differ Differ
}

func NewDiffService(store *Store, differ Differ) *DiffService {
	return &DiffService{store: store, differ: differ}
}

// Diff describes how a channel's package set moved between two persisted days
// as a merge patch over {sub-channel: {name: version}}.
func (s *DiffService) Diff(ctx context.Context, channel domain.Channel, from, to string) (DiffResult, error) {
	older, err := s.store.LoadDate(ctx, channel, from)
	if err != nil {
		return DiffResult{}, err
	}
	newer, err := s.store.LoadDate(ctx, channel, to)
	if err != nil {
		return DiffResult{}, err
	}

	original, err := versionIndex(older)
	if err != nil {
		return DiffResult{}, err
	}
	modified, err := versionIndex(newer)
	if err != nil {
		return DiffResult{}, err
	}

	patch, err := s.differ.MergeDiff(ctx, original, modified)
	if err != nil {
		return DiffResult{}, err
	}
	return DiffResult{Channel: older.Channel, From: older.Date, To: newer.Date, Patch: patch}, nil
}

func versionIndex(snap domain.Snapshot) ([]byte, error) {
	index := make(map[string]map[string]string, len(snap.Packages))
	for sub, records := range snap.Packages {
		versions := make(map[string]string, len(records))
		for _, record := range records {
			versions[record.Name] = record.Version
		}
		index[sub] = versions
	}
	return json.Marshal(index, json.Deterministic(true))
}
