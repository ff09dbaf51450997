package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/osvaldoandrade/pkgmirror/internal/app/paths"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

const (
	DefaultCacheDir   = "~/.cache/archlinux.packages"
	DefaultWorkDir    = "."
	DefaultJournal    = "pkgmirror.db"
	DefaultMaxPasses  = 10
	DefaultRetryDelay = 40 * time.Second
	DefaultProtocol   = "https"
	DefaultReposDir   = "repos"
	DefaultTagPrefix  = "x86"

	EnvConfig   = "PKGMIRROR_CONFIG"
	EnvCacheDir = "PKGMIRROR_CACHE_DIR"
)

var DefaultChannels = []string{"core", "extra"}

type Config struct {
	CacheDir   string
	WorkDir    string
	Journal    string
	MaxPasses  int
	RetryDelay time.Duration
	Protocol   string
	Channels   []domain.Channel
	Publish    Publish
}

type Publish struct {
	ReposDir     string
	TagPrefix    string
	MainBranch   string
	TargetBranch string
	Targets      []Target
}

type Target struct {
	Channel string
	Dir     string
}

type fileConfig struct {
	CacheDir   string        `toml:"cache_dir"`
	WorkDir    string        `toml:"work_dir"`
	Journal    string        `toml:"journal"`
	MaxPasses  int           `toml:"max_passes"`
	RetryDelay string        `toml:"retry_delay"`
	Protocol   string        `toml:"protocol"`
	Channels   []fileChannel `toml:"channels"`
	Publish    filePublish   `toml:"publish"`
}

type fileChannel struct {
	Name         string `toml:"name"`
	Architecture string `toml:"architecture"`
	Host         string `toml:"host"`
}

type filePublish struct {
	ReposDir     string       `toml:"repos_dir"`
	TagPrefix    string       `toml:"tag_prefix"`
	MainBranch   string       `toml:"main_branch"`
	TargetBranch string       `toml:"target_branch"`
	Targets      []fileTarget `toml:"targets"`
}

type fileTarget struct {
	Channel string `toml:"channel"`
	Dir     string `toml:"dir"`
}

// Default mirrors core and extra for x86_64 into the user cache.
func Default() Config {
	channels := make([]domain.Channel, 0, len(DefaultChannels))
	for _, name := range DefaultChannels {
		channels = append(channels, domain.NewChannel(name))
	}
	return Config{
		CacheDir:   DefaultCacheDir,
		WorkDir:    DefaultWorkDir,
		Journal:    DefaultJournal,
		MaxPasses:  DefaultMaxPasses,
		RetryDelay: DefaultRetryDelay,
		Protocol:   DefaultProtocol,
		Channels:   channels,
		Publish: Publish{
			ReposDir:  DefaultReposDir,
			TagPrefix: DefaultTagPrefix,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults; a
// missing file is an error only when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if required {
				return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("stat config: %w", err)
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("cache_dir") {
		cfg.CacheDir = strings.TrimSpace(raw.CacheDir)
	}
	if meta.IsDefined("work_dir") {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if meta.IsDefined("journal") {
		cfg.Journal = strings.TrimSpace(raw.Journal)
	}
	if meta.IsDefined("max_passes") {
		cfg.MaxPasses = raw.MaxPasses
	}
	if meta.IsDefined("retry_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RetryDelay))
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: %q", ErrInvalidRetryDelay, raw.RetryDelay)
		}
		cfg.RetryDelay = d
	}
	if meta.IsDefined("protocol") {
		cfg.Protocol = strings.TrimSpace(raw.Protocol)
	}
	if meta.IsDefined("channels") {
		cfg.Channels = make([]domain.Channel, 0, len(raw.Channels))
		for _, ch := range raw.Channels {
			cfg.Channels = append(cfg.Channels, domain.Channel{
				Name:         ch.Name,
				Architecture: ch.Architecture,
				Host:         ch.Host,
			}.WithDefaults())
		}
	}
	if meta.IsDefined("publish", "repos_dir") {
		cfg.Publish.ReposDir = strings.TrimSpace(raw.Publish.ReposDir)
	}
	if meta.IsDefined("publish", "tag_prefix") {
		cfg.Publish.TagPrefix = strings.TrimSpace(raw.Publish.TagPrefix)
	}
	if meta.IsDefined("publish", "main_branch") {
		cfg.Publish.MainBranch = strings.TrimSpace(raw.Publish.MainBranch)
	}
	if meta.IsDefined("publish", "target_branch") {
		cfg.Publish.TargetBranch = strings.TrimSpace(raw.Publish.TargetBranch)
	}
	if meta.IsDefined("publish", "targets") {
		cfg.Publish.Targets = make([]Target, 0, len(raw.Publish.Targets))
		for _, target := range raw.Publish.Targets {
			cfg.Publish.Targets = append(cfg.Publish.Targets, Target{
				Channel: strings.TrimSpace(target.Channel),
				Dir:     strings.TrimSpace(target.Dir),
			})
		}
	}

	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if value := strings.TrimSpace(getenv(EnvCacheDir)); value != "" {
		c.CacheDir = value
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return fmt.Errorf("cache_dir: %w", paths.ErrPathRequired)
	}
	if c.MaxPasses < 1 {
		return ErrInvalidMaxPasses
	}
	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}

	seen := make(map[string]struct{}, len(c.Channels))
	names := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			return err
		}
		if _, ok := seen[ch.Key()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateChannel, ch.Key())
		}
		seen[ch.Key()] = struct{}{}
		names[ch.Name] = struct{}{}
	}
	for _, target := range c.Publish.Targets {
		if _, ok := names[target.Channel]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTargetChannel, target.Channel)
		}
	}
	return nil
}

// Resolve makes every path absolute. Relative journal, repos and target
// paths are taken from the work directory. Publish targets default to one
// directory per channel name.
func (c Config) Resolve() (Config, error) {
	var err error
	if c.CacheDir, err = paths.NormalizeDir(c.CacheDir); err != nil {
		return Config{}, fmt.Errorf("cache_dir: %w", err)
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.WorkDir, err = paths.NormalizeDir(c.WorkDir); err != nil {
		return Config{}, fmt.Errorf("work_dir: %w", err)
	}
	if strings.TrimSpace(c.Journal) != "" {
		if c.Journal, err = c.underWorkDir(c.Journal); err != nil {
			return Config{}, fmt.Errorf("journal: %w", err)
		}
	}
	if strings.TrimSpace(c.Publish.ReposDir) == "" {
		c.Publish.ReposDir = DefaultReposDir
	}
	if c.Publish.ReposDir, err = c.underWorkDir(c.Publish.ReposDir); err != nil {
		return Config{}, fmt.Errorf("repos_dir: %w", err)
	}

	targets := c.Publish.Targets
	if len(targets) == 0 {
		for _, ch := range c.Channels {
			targets = append(targets, Target{Channel: ch.Name, Dir: ch.Name})
		}
	}
	resolved := make([]Target, 0, len(targets))
	for _, target := range targets {
		dir := target.Dir
		if strings.TrimSpace(dir) == "" {
			dir = target.Channel
		}
		if dir, err = c.underWorkDir(dir); err != nil {
			return Config{}, fmt.Errorf("publish target %s: %w", target.Channel, err)
		}
		resolved = append(resolved, Target{Channel: target.Channel, Dir: dir})
	}
	c.Publish.Targets = resolved
	return c, nil
}

func (c Config) underWorkDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", paths.ErrPathRequired
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "~") {
		return paths.NormalizeDir(path)
	}
	return filepath.Join(c.WorkDir, path), nil
}

// SelectChannels returns the configured channels named in names, in the
// order given. No names selects every configured channel.
func (c Config) SelectChannels(names []string) ([]domain.Channel, error) {
	if len(names) == 0 {
		return append([]domain.Channel(nil), c.Channels...), nil
	}
	out := make([]domain.Channel, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		found := false
		for _, ch := range c.Channels {
			if ch.Name == name {
				out = append(out, ch)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
	}
	return out, nil
}

// FindChannel returns the first configured channel called name.
func (c Config) FindChannel(name string) (domain.Channel, error) {
	channels, err := c.SelectChannels([]string{name})
	if err != nil {
		return domain.Channel{}, err
	}
	return channels[0], nil
}
