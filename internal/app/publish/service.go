package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

const (
	DefaultTagPrefix    = "x86"
	DefaultMainBranch   = "main"
	DefaultTargetBranch = "arch"
)

// Target is a per-channel repository that receives the channel's subtree of
// the aggregate repository.
type Target struct {
	Channel string
	Dir     string
}

type Config struct {
	CacheRoot    string
	ReposDir     string
	Targets      []Target
	TagPrefix    string
	MainBranch   string
	TargetBranch string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.TagPrefix) == "" {
		c.TagPrefix = DefaultTagPrefix
	}
	if strings.TrimSpace(c.MainBranch) == "" {
		c.MainBranch = DefaultMainBranch
	}
	if strings.TrimSpace(c.TargetBranch) == "" {
		c.TargetBranch = DefaultTargetBranch
	}
	return c
}

type Report struct {
	Date      string
	Committed []string
	Tags      []string
	Patched   int
}

// Service copies a converged cache tree into the publishing repositories,
// commits, tags and pushes them.
type Service struct {
	git    Git
	syncer Syncer
	files  Files
	config Config
	logger *slog.Logger
}

func NewService(git Git, syncer Syncer, files Files, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = platform.DiscardLogger()
	}
	return &Service{git: git, syncer: syncer, files: files, config: config.withDefaults(), logger: logger}
}

func CommitMessage(date string) string {
	return fmt.Sprintf("import repos from Archlinux\n\ndate: %s\n", date)
}

func (s *Service) TagName(date string) string {
	return s.config.TagPrefix + "." + date
}

// Publish pushes the aggregate repository on the main branch, then every
// target on its own branch with a dated tag. Nothing is touched unless all
// directories exist.
func (s *Service) Publish(ctx context.Context, date string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if err := s.checkTargets(); err != nil {
		return Report{}, err
	}

	report := Report{Date: date}
	message := CommitMessage(date)
	repos := s.config.ReposDir

	if err := s.prepare(ctx, repos, s.config.MainBranch); err != nil {
		return report, err
	}
	if err := s.syncer.Mirror(ctx, s.config.CacheRoot, repos, []string{".git", ".SRCINFO"}); err != nil {
		return report, err
	}
	patched, err := s.patchTree(ctx, repos)
	report.Patched = patched
	if err != nil {
		return report, fmt.Errorf("patch PKGBUILD files: %w", err)
	}
	if err := s.commit(ctx, repos, message, &report); err != nil {
		return report, err
	}
	if err := s.git.Push(ctx, repos, []string{s.config.MainBranch}); err != nil {
		return report, fmt.Errorf("push %s: %w", repos, err)
	}
	s.logger.Info("aggregate repository published", "dir", repos, "patched", patched)

	tag := s.TagName(date)
	for _, target := range s.config.Targets {
		if err := s.prepare(ctx, target.Dir, s.config.TargetBranch); err != nil {
			return report, err
		}
		src := filepath.Join(repos, target.Channel)
		if err := s.syncer.Mirror(ctx, src, target.Dir, []string{".git", ".version"}); err != nil {
			return report, err
		}
		if err := s.commit(ctx, target.Dir, message, &report); err != nil {
			return report, err
		}
		if err := s.git.Tag(ctx, target.Dir, tag, tag); err != nil {
			return report, fmt.Errorf("tag %s: %w", target.Dir, err)
		}
		report.Tags = append(report.Tags, target.Channel+"@"+tag)
		if err := s.git.Push(ctx, target.Dir, []string{s.config.TargetBranch, tag}); err != nil {
			return report, fmt.Errorf("push %s: %w", target.Dir, err)
		}
		s.logger.Info("channel repository published", "channel", target.Channel, "dir", target.Dir, "tag", tag)
	}
	return report, nil
}

func (s *Service) checkTargets() error {
	if len(s.config.Targets) == 0 {
		return ErrNoTargets
	}
	dirs := []string{s.config.CacheRoot, s.config.ReposDir}
	for _, target := range s.config.Targets {
		dirs = append(dirs, target.Dir)
	}
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if dir == "" || err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %q", ErrPublishTargetMissing, dir)
		}
	}
	return nil
}

func (s *Service) prepare(ctx context.Context, dir, branch string) error {
	if err := s.git.SwitchBranch(ctx, dir, branch); err != nil {
		return fmt.Errorf("prepare %s: %w", dir, err)
	}
	if err := s.git.ClearWorktree(ctx, dir); err != nil {
		return fmt.Errorf("prepare %s: %w", dir, err)
	}
	return nil
}

func (s *Service) commit(ctx context.Context, dir, message string, report *Report) error {
	committed, err := s.git.CommitAll(ctx, dir, message)
	if err != nil {
		return fmt.Errorf("commit %s: %w", dir, err)
	}
	if committed {
		report.Committed = append(report.Committed, dir)
	} else {
		s.logger.Info("nothing to commit", "dir", dir)
	}
	return nil
}
