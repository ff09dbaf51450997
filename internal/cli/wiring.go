package cli

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	mirrorapp "github.com/osvaldoandrade/pkgmirror/internal/app/mirror"
	publishapp "github.com/osvaldoandrade/pkgmirror/internal/app/publish"
	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	snapshotapp "github.com/osvaldoandrade/pkgmirror/internal/app/snapshot"
	"github.com/osvaldoandrade/pkgmirror/internal/config"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/canonicaljson"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/execrunner"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/filesystem"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/gitrepo"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/ident"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/jsonpatch"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/pkgctl"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/repod"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/rsync"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/schema"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/snapshotcache"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/sqlitejournal"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

// runtime holds the adapters one command invocation works with.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	quiet    bool
	runner   *execrunner.Runner
	provider *repod.Provider
	store    *snapshotapp.Store
	engine   *reconcile.Engine
	journal  *sqlitejournal.Store
}

func newRuntime(opts *RootOptions, console io.Writer) *runtime {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = platform.DiscardLogger()
	}
	quiet := !opts.Verbose

	runner := execrunner.New(execrunner.Options{
		Console:   console,
		Logger:    logger,
		BaseDelay: cfg.RetryDelay,
	})
	provider := repod.NewProvider(runner, repod.Options{
		Quiet:     quiet,
		Validator: &schema.PackageMetadataValidator{},
		Logger:    logger,
	})
	store := snapshotapp.NewStore(
		cfg.WorkDir,
		provider,
		snapshotcache.FileCache{},
		canonicaljson.Canonicalizer{},
		platform.RealClock{},
		logger,
	)
	repos := pkgctl.NewClient(runner, pkgctl.Options{Protocol: cfg.Protocol, Quiet: quiet})
	engine := reconcile.NewEngine(store, repos, gitrepo.NewStore(), reconcile.Config{
		CacheRoot: cfg.CacheDir,
		MaxPasses: cfg.MaxPasses,
	}, logger)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		quiet:    quiet,
		runner:   runner,
		provider: provider,
		store:    store,
		engine:   engine,
	}
}

// openJournal opens the configured journal, or returns ErrJournalDisabled.
func (r *runtime) openJournal() (*sqlitejournal.Store, error) {
	if r.journal != nil {
		return r.journal, nil
	}
	if strings.TrimSpace(r.cfg.Journal) == "" {
		return nil, ErrJournalDisabled
	}
	journal, err := sqlitejournal.OpenWithOptions(r.cfg.Journal, sqlitejournal.OpenOptions{Logger: r.logger})
	if err != nil {
		return nil, err
	}
	r.journal = journal
	return journal, nil
}

func (r *runtime) publisher() *publishapp.Service {
	targets := make([]publishapp.Target, 0, len(r.cfg.Publish.Targets))
	for _, target := range r.cfg.Publish.Targets {
		targets = append(targets, publishapp.Target{Channel: target.Channel, Dir: target.Dir})
	}
	return publishapp.NewService(
		gitrepo.NewStore(),
		rsync.NewSyncer(r.runner, r.quiet),
		filesystem.Tree{},
		publishapp.Config{
			CacheRoot:    r.cfg.CacheDir,
			ReposDir:     r.cfg.Publish.ReposDir,
			Targets:      targets,
			TagPrefix:    r.cfg.Publish.TagPrefix,
			MainBranch:   r.cfg.Publish.MainBranch,
			TargetBranch: r.cfg.Publish.TargetBranch,
		},
		r.logger,
	)
}

func (r *runtime) syncService(push bool) (*mirrorapp.SyncService, error) {
	var journal mirrorapp.Journal
	store, err := r.openJournal()
	switch {
	case err == nil:
		journal = store
	case errors.Is(err, ErrJournalDisabled):
	default:
		return nil, err
	}

	var publisher mirrorapp.Publisher
	if push {
		publisher = r.publisher()
	}
	clock := platform.RealClock{}
	return mirrorapp.NewSyncService(r.engine, journal, publisher, ident.NewRunIDGenerator(clock), clock, r.logger), nil
}

func (r *runtime) diffService() *snapshotapp.DiffService {
	return snapshotapp.NewDiffService(r.store, jsonpatch.Differ{})
}

func (r *runtime) Close() error {
	var errs []error
	if r.journal != nil {
		errs = append(errs, r.journal.Close())
	}
	if r.provider != nil {
		errs = append(errs, r.provider.Close())
	}
	return errors.Join(errs...)
}
