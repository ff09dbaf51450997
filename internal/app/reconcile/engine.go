package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

const (
	DefaultMaxPasses      = 10
	DefaultCloneAttempts  = 5
	DefaultSwitchAttempts = 3
	DefaultFetchAttempts  = 1

	ManifestName = ".version"
)

type Config struct {
	CacheRoot      string
	MaxPasses      int
	CloneAttempts  int
	SwitchAttempts int
	FetchAttempts  int
}

func (c Config) withDefaults() Config {
	if c.MaxPasses <= 0 {
		c.MaxPasses = DefaultMaxPasses
	}
	if c.CloneAttempts <= 0 {
		c.CloneAttempts = DefaultCloneAttempts
	}
	if c.SwitchAttempts <= 0 {
		c.SwitchAttempts = DefaultSwitchAttempts
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = DefaultFetchAttempts
	}
	return c
}

type Options struct {
	Repair bool
	Sink   Sink
}

// Result summarizes a reconciliation. Drifts holds every drift observed in
// pass order; Unresolved holds the drift of the last pass when the run did
// not converge.
type Result struct {
	Channel        domain.Channel
	Passes         int
	Converged      bool
	Drifts         []domain.Drift
	Unresolved     []domain.Drift
	SnapshotDate   string
	SnapshotDigest string
}

// Engine brings the cache tree of a channel in line with its daily snapshot.
// It owns cache_root/<sub-channel> for every channel it is given.
type Engine struct {
	snapshots SnapshotSource
	repos     RepoClient
	tags      TagReader
	config    Config
	logger    *slog.Logger
}

func NewEngine(snapshots SnapshotSource, repos RepoClient, tags TagReader, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = platform.DiscardLogger()
	}
	return &Engine{
		snapshots: snapshots,
		repos:     repos,
		tags:      tags,
		config:    config.withDefaults(),
		logger:    logger,
	}
}

type passMode struct {
	repair   bool
	readOnly bool
}

// Reconcile runs passes until one finds no drift. Every pass after a drifting
// one repairs, whatever opts.Repair says. Orphans are removed on every pass.
func (e *Engine) Reconcile(ctx context.Context, channel domain.Channel, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Channel: channel}, err
	}
	if e.config.CacheRoot == "" {
		return Result{Channel: channel}, ErrCacheRootRequired
	}

	snap, err := e.snapshots.Load(ctx, channel)
	if err != nil {
		return Result{Channel: channel}, fmt.Errorf("load snapshot for %s: %w", channel, err)
	}

	sink := opts.Sink
	if sink == nil {
		sink = discardSink{}
	}

	result := Result{
		Channel:        snap.Channel,
		SnapshotDate:   snap.Date,
		SnapshotDigest: snap.Digest,
	}
	mode := passMode{repair: opts.Repair}
	for pass := 1; pass <= e.config.MaxPasses; pass++ {
		drifts, err := e.runPass(ctx, snap, pass, mode, sink)
		result.Passes = pass
		result.Drifts = append(result.Drifts, drifts...)
		if err != nil {
			result.Unresolved = drifts
			return result, err
		}
		if len(drifts) == 0 {
			result.Converged = true
			result.Unresolved = nil
			return result, nil
		}
		result.Unresolved = drifts
		mode.repair = true
	}

	e.logger.Error("channel did not converge", "channel", snap.Channel.String(), "passes", result.Passes, "drifts", len(result.Unresolved))
	return result, fmt.Errorf("%w: %s after %d passes", ErrUnresolvedDrift, snap.Channel, result.Passes)
}

// Inspect classifies the cache tree against today's snapshot without
// touching it.
func (e *Engine) Inspect(ctx context.Context, channel domain.Channel, sink Sink) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Channel: channel}, err
	}
	if e.config.CacheRoot == "" {
		return Result{Channel: channel}, ErrCacheRootRequired
	}

	snap, err := e.snapshots.Load(ctx, channel)
	if err != nil {
		return Result{Channel: channel}, fmt.Errorf("load snapshot for %s: %w", channel, err)
	}
	if sink == nil {
		sink = discardSink{}
	}

	drifts, err := e.runPass(ctx, snap, 1, passMode{readOnly: true}, sink)
	result := Result{
		Channel:        snap.Channel,
		Passes:         1,
		Converged:      err == nil && len(drifts) == 0,
		Drifts:         drifts,
		SnapshotDate:   snap.Date,
		SnapshotDigest: snap.Digest,
	}
	if !result.Converged {
		result.Unresolved = drifts
	}
	return result, err
}

func (e *Engine) runPass(ctx context.Context, snap domain.Snapshot, pass int, mode passMode, sink Sink) ([]domain.Drift, error) {
	channel := snap.Channel
	sink.Emit(ctx, Event{Kind: EventPassStarted, Channel: channel, Pass: pass, Repair: mode.repair})

	var drifts []domain.Drift
	for _, sub := range channel.SubChannels() {
		found, err := e.reconcileSubChannel(ctx, snap, sub, pass, mode, sink)
		drifts = append(drifts, found...)
		if err != nil {
			return drifts, err
		}
	}

	sink.Emit(ctx, Event{Kind: EventPassFinished, Channel: channel, Pass: pass, Repair: mode.repair, Drifts: len(drifts)})
	return drifts, nil
}

func (e *Engine) reconcileSubChannel(ctx context.Context, snap domain.Snapshot, sub string, pass int, mode passMode, sink Sink) ([]domain.Drift, error) {
	records := snap.Records(sub)
	if len(records) == 0 {
		return nil, nil
	}

	channel := snap.Channel
	repoDir := filepath.Join(e.config.CacheRoot, sub)
	if !mode.readOnly {
		if err := os.MkdirAll(repoDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", repoDir, err)
		}
	}

	var drifts []domain.Drift
	report := func(drift domain.Drift) {
		drifts = append(drifts, drift)
		sink.Emit(ctx, Event{
			Kind:       EventDrift,
			Channel:    channel,
			Pass:       pass,
			Repair:     mode.repair,
			SubChannel: drift.SubChannel,
			Name:       drift.Name,
			Version:    drift.Version,
			Tag:        drift.Tag,
			DriftKind:  drift.Kind,
		})
	}
	repairStep := func(action RepairAction, record domain.PackageRecord, run func() int) {
		base := Event{Channel: channel, Pass: pass, Repair: true, SubChannel: sub, Name: record.Name, Version: record.Version, Action: action}
		started := base
		started.Kind = EventRepairStarted
		sink.Emit(ctx, started)
		finished := base
		finished.Kind = EventRepairFinished
		finished.ExitCode = run()
		sink.Emit(ctx, finished)
	}

	tracked := make(map[string]struct{}, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		tracked[record.Name] = struct{}{}

		pkgDir := filepath.Join(repoDir, record.Name)
		if !exists(pkgDir) {
			report(domain.Drift{Kind: domain.DriftMissing, SubChannel: sub, Name: record.Name, Version: record.Version})
			if mode.repair {
				repairStep(ActionClone, record, func() int {
					return e.repos.Clone(ctx, repoDir, record.Name, record.Version, e.config.CloneAttempts)
				})
			}
			continue
		}

		tag, err := e.tags.CurrentTag(ctx, pkgDir)
		if err != nil {
			e.logger.Debug("tag query failed", "dir", pkgDir, "err", err)
			tag = ""
		}
		if record.Tag() == tag {
			continue
		}

		report(domain.Drift{Kind: domain.DriftMismatched, SubChannel: sub, Name: record.Name, Version: record.Version, Tag: tag})
		if mode.repair {
			repairStep(ActionFetch, record, func() int {
				return e.repos.Fetch(ctx, pkgDir, e.config.FetchAttempts)
			})
			repairStep(ActionSwitch, record, func() int {
				return e.repos.Clone(ctx, repoDir, record.Name, record.Version, e.config.SwitchAttempts)
			})
		}
	}

	if err := e.sweepOrphans(ctx, channel, repoDir, sub, tracked, pass, mode, sink, report); err != nil {
		return drifts, err
	}

	if mode.readOnly {
		return drifts, nil
	}
	if err := writeManifest(repoDir, records); err != nil {
		return drifts, err
	}
	return drifts, nil
}

// sweepOrphans removes every entry of repoDir that is not a record of this
// pass, except the manifest. In read-only mode it only reports them.
func (e *Engine) sweepOrphans(ctx context.Context, channel domain.Channel, repoDir, sub string, tracked map[string]struct{}, pass int, mode passMode, sink Sink, report func(domain.Drift)) error {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list %s: %w", repoDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == ManifestName {
			continue
		}
		if _, ok := tracked[name]; ok {
			continue
		}
		report(domain.Drift{Kind: domain.DriftOrphan, SubChannel: sub, Name: name})
		if mode.readOnly {
			continue
		}
		if err := os.RemoveAll(filepath.Join(repoDir, name)); err != nil {
			return fmt.Errorf("remove orphan %s/%s: %w", sub, name, err)
		}
		sink.Emit(ctx, Event{Kind: EventOrphanRemoved, Channel: channel, Pass: pass, Repair: mode.repair, SubChannel: sub, Name: name})
	}
	return nil
}

func writeManifest(repoDir string, records []domain.PackageRecord) error {
	var buf bytes.Buffer
	for _, record := range records {
		fmt.Fprintf(&buf, "%s %s\n", record.Name, record.Version)
	}
	if err := os.WriteFile(filepath.Join(repoDir, ManifestName), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
