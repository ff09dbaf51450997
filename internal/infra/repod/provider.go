package repod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/execrunner"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

var ErrCommandFailed = errors.New("snapshot provider command failed")

type Runner interface {
	Run(ctx context.Context, cmd execrunner.Command, opts execrunner.RunOptions) execrunner.Result
}

type Validator interface {
	Validate(ctx context.Context, doc any) error
}

type Options struct {
	WorkDir   string
	Quiet     bool
	Validator Validator
	Logger    *slog.Logger
}

// Provider downloads upstream package databases and imports them with
// repod-file into a private management tree.
type Provider struct {
	runner    Runner
	validator Validator
	quiet     bool
	logger    *slog.Logger

	mu          sync.Mutex
	workDir     string
	ownsWorkDir bool
}

func NewProvider(runner Runner, opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = platform.DiscardLogger()
	}
	return &Provider{
		runner:    runner,
		validator: opts.Validator,
		quiet:     opts.Quiet,
		logger:    logger,
		workDir:   opts.WorkDir,
	}
}

func (p *Provider) Import(ctx context.Context, channel domain.Channel) error {
	work, err := p.channelWorkDir(channel)
	if err != nil {
		return err
	}

	conf, err := renderConfig(channel, p.managementDir(work))
	if err != nil {
		return err
	}
	confPath := filepath.Join(work, "default.conf")
	if err := os.WriteFile(confPath, conf, 0o644); err != nil {
		return fmt.Errorf("write repod config: %w", err)
	}

	for _, sub := range channel.SubChannels() {
		dbPath := filepath.Join(work, sub+".db.tar.gz")
		url := fmt.Sprintf("%s/%s/os/%s/%s.db.tar.gz", channel.Host, sub, channel.Architecture, sub)
		p.logger.Info("download package database", "url", url)
		if err := p.run(ctx, execrunner.Command{Name: "wget", Args: []string{"-q", "-O", dbPath, url}}); err != nil {
			return err
		}

		args := []string{"-c", confPath, "repo", "importdb", dbPath}
		switch sub {
		case channel.Testing():
			args = append(args, "-T")
		case channel.Staging():
			args = append(args, "-S")
		}
		args = append(args, channel.Name)
		if err := p.run(ctx, execrunner.Command{Name: "repod-file", Args: args}); err != nil {
			return err
		}
	}
	return nil
}

// Packages reads the imported metadata of one sub-channel in filename order.
func (p *Provider) Packages(ctx context.Context, channel domain.Channel, subChannel string) ([]domain.PackageRecord, error) {
	work, err := p.channelWorkDir(channel)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(p.managementDir(work), channel.Architecture, subChannel)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.PackageRecord{}, nil
		}
		return nil, fmt.Errorf("list package metadata: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	records := make([]domain.PackageRecord, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := p.readMetadata(ctx, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (p *Provider) readMetadata(ctx context.Context, path string) (domain.PackageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PackageRecord{}, fmt.Errorf("read package metadata: %w", err)
	}

	if p.validator != nil {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return domain.PackageRecord{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		if err := p.validator.Validate(ctx, doc); err != nil {
			return domain.PackageRecord{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}

	var meta struct {
		Base    string `json:"base"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.PackageRecord{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return domain.PackageRecord{Name: strings.TrimSpace(meta.Base), Version: strings.TrimSpace(meta.Version)}, nil
}

func (p *Provider) run(ctx context.Context, cmd execrunner.Command) error {
	result := p.runner.Run(ctx, cmd, execrunner.RunOptions{Attempts: 1, Quiet: p.quiet})
	if !result.OK() {
		return fmt.Errorf("%w: %s exited %d", ErrCommandFailed, cmd.Name, result.ExitCode)
	}
	return nil
}

func (p *Provider) managementDir(work string) string {
	return filepath.Join(work, "management")
}

func (p *Provider) channelWorkDir(channel domain.Channel) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.workDir == "" {
		dir, err := os.MkdirTemp("", "pkgmirror-repod-")
		if err != nil {
			return "", fmt.Errorf("create provider work dir: %w", err)
		}
		p.workDir = dir
		p.ownsWorkDir = true
	}
	dir := filepath.Join(p.workDir, channel.Name+"-"+channel.Architecture)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create provider work dir: %w", err)
	}
	return dir, nil
}

// Close removes the work tree when the provider created it.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ownsWorkDir {
		return nil
	}
	p.ownsWorkDir = false
	return os.RemoveAll(p.workDir)
}
