package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

// Store hands out one immutable snapshot per channel and day. A day that
// already has a cache file is never regenerated.
type Store struct {
	dir      string
	provider Provider
	cache    Cache
	digester Digester
	clock    Clock
	logger   *slog.Logger

	mu     sync.Mutex
	loaded map[string]domain.Snapshot
}

func NewStore(dir string, provider Provider, cache Cache, digester Digester, clock Clock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = platform.DiscardLogger()
	}
	return &Store{
		dir:      dir,
		provider: provider,
		cache:    cache,
		digester: digester,
		clock:    clock,
		logger:   logger,
		loaded:   make(map[string]domain.Snapshot),
	}
}

func (s *Store) Today() string {
	return platform.FormatDate(s.clock.Now())
}

// CachePath returns the file a channel's snapshot for date is persisted in.
func (s *Store) CachePath(channel domain.Channel, date string) string {
	name := channel.Name
	if channel.Architecture != "" && channel.Architecture != domain.DefaultArchitecture {
		name += "-" + channel.Architecture
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", name, date))
}

func (s *Store) Load(ctx context.Context, channel domain.Channel) (domain.Snapshot, error) {
	channel = channel.WithDefaults()
	if err := channel.Validate(); err != nil {
		return domain.Snapshot{}, err
	}

	date := s.Today()
	key := channel.Key() + "@" + date

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.loaded[key]; ok {
		return snap, nil
	}

	path := s.CachePath(channel, date)
	snap, err := s.readCached(ctx, channel, date, path)
	switch {
	case err == nil:
		s.logger.Info("snapshot loaded from cache", "channel", channel.String(), "path", path)
	case errors.Is(err, ErrSnapshotNotFound):
		snap, err = s.build(ctx, channel, date, path)
		if err != nil {
			return domain.Snapshot{}, err
		}
	default:
		return domain.Snapshot{}, err
	}

	s.loaded[key] = snap
	return snap, nil
}

// LoadDate reads a previously persisted snapshot without contacting upstream.
func (s *Store) LoadDate(ctx context.Context, channel domain.Channel, date string) (domain.Snapshot, error) {
	channel = channel.WithDefaults()
	if err := channel.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	date = strings.TrimSpace(date)
	if _, err := platform.ParseDate(date); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w %q: expected YYYYMMDD", ErrInvalidDate, date)
	}
	return s.readCached(ctx, channel, date, s.CachePath(channel, date))
}

func (s *Store) readCached(ctx context.Context, channel domain.Channel, date, path string) (domain.Snapshot, error) {
	packages, raw, err := s.cache.Read(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, filepath.Base(path))
		}
		return domain.Snapshot{}, err
	}
	return s.newSnapshot(ctx, channel, date, packages, raw)
}

func (s *Store) build(ctx context.Context, channel domain.Channel, date, path string) (domain.Snapshot, error) {
	s.logger.Info("building snapshot from upstream", "channel", channel.String(), "host", channel.Host)
	if err := s.provider.Import(ctx, channel); err != nil {
		return domain.Snapshot{}, fmt.Errorf("import %s: %w", channel, err)
	}

	packages := make(map[string][]domain.PackageRecord, 3)
	for _, sub := range channel.SubChannels() {
		records, err := s.provider.Packages(ctx, channel, sub)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("list %s packages: %w", sub, err)
		}
		if records == nil {
			records = []domain.PackageRecord{}
		}
		packages[sub] = records
	}

	raw, err := s.cache.Write(ctx, path, packages)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.logger.Info("snapshot persisted", "channel", channel.String(), "path", path)
	return s.newSnapshot(ctx, channel, date, packages, raw)
}

func (s *Store) newSnapshot(ctx context.Context, channel domain.Channel, date string, packages map[string][]domain.PackageRecord, raw []byte) (domain.Snapshot, error) {
	snap := domain.Snapshot{Channel: channel, Date: date, Packages: packages}
	if s.digester != nil && len(raw) > 0 {
		digest, err := s.digester.Digest(ctx, raw)
		if err != nil {
			return domain.Snapshot{}, err
		}
		snap.Digest = digest
	}
	return snap, nil
}
