package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkgmirror.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0].Name != "core" || cfg.Channels[1].Name != "extra" {
		t.Fatalf("unexpected default channels %+v", cfg.Channels)
	}
	for _, ch := range cfg.Channels {
		if ch.Architecture != domain.DefaultArchitecture || ch.Host != domain.DefaultHost {
			t.Fatalf("unexpected channel defaults %+v", ch)
		}
	}
	if cfg.MaxPasses != DefaultMaxPasses || cfg.RetryDelay != DefaultRetryDelay {
		t.Fatalf("unexpected retry defaults %+v", cfg)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.CacheDir != DefaultCacheDir {
		t.Fatalf("expected default cache dir, got %q", cfg.CacheDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := Load(missing, true); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	cfg, err := Load(missing, false)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected defaults for optional missing file")
	}
}

func TestLoadOverridesDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
cache_dir = "/srv/mirror/cache"
max_passes = 4
retry_delay = "5s"

[[channels]]
name = "core"

[[channels]]
name = "core"
architecture = "aarch64"
host = "https://mirror.example.org/"

[publish]
tag_prefix = "la64"

[[publish.targets]]
channel = "core"
dir = "/srv/mirror/core"
`)

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.CacheDir != "/srv/mirror/cache" || cfg.MaxPasses != 4 || cfg.RetryDelay != 5*time.Second {
		t.Fatalf("unexpected scalars %+v", cfg)
	}
	if cfg.WorkDir != DefaultWorkDir || cfg.Protocol != DefaultProtocol {
		t.Fatalf("expected untouched defaults, got %+v", cfg)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %+v", cfg.Channels)
	}
	if cfg.Channels[0].Architecture != domain.DefaultArchitecture {
		t.Fatalf("expected default architecture, got %+v", cfg.Channels[0])
	}
	if cfg.Channels[1].Architecture != "aarch64" || cfg.Channels[1].Host != "https://mirror.example.org" {
		t.Fatalf("unexpected second channel %+v", cfg.Channels[1])
	}
	if cfg.Publish.TagPrefix != "la64" || cfg.Publish.ReposDir != DefaultReposDir {
		t.Fatalf("unexpected publish %+v", cfg.Publish)
	}
	if len(cfg.Publish.Targets) != 1 || cfg.Publish.Targets[0].Dir != "/srv/mirror/core" {
		t.Fatalf("unexpected targets %+v", cfg.Publish.Targets)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "cache_dirr = \"/tmp\"\n")
	if _, err := Load(path, true); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoadRejectsBadRetryDelay(t *testing.T) {
	path := writeConfig(t, "retry_delay = \"soon\"\n")
	if _, err := Load(path, true); !errors.Is(err, ErrInvalidRetryDelay) {
		t.Fatalf("expected ErrInvalidRetryDelay, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "no channels", mutate: func(c *Config) { c.Channels = nil }, want: ErrNoChannels},
		{name: "zero passes", mutate: func(c *Config) { c.MaxPasses = 0 }, want: ErrInvalidMaxPasses},
		{name: "duplicate", mutate: func(c *Config) { c.Channels = append(c.Channels, domain.NewChannel("core")) }, want: ErrDuplicateChannel},
		{name: "bad name", mutate: func(c *Config) { c.Channels[0].Name = "../core" }, want: domain.ErrInvalidChannelName},
		{name: "unknown target", mutate: func(c *Config) { c.Publish.Targets = []Target{{Channel: "multilib"}} }, want: ErrUnknownTargetChannel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(func(key string) string {
		if key == EnvCacheDir {
			return "/var/cache/pkgmirror"
		}
		return ""
	})
	if cfg.CacheDir != "/var/cache/pkgmirror" {
		t.Fatalf("expected env cache dir, got %q", cfg.CacheDir)
	}
}

func TestResolvePaths(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)

	cfg := Default()
	cfg.WorkDir = work
	resolved, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved.CacheDir != filepath.Join(home, ".cache", "archlinux.packages") {
		t.Fatalf("unexpected cache dir %q", resolved.CacheDir)
	}
	if resolved.Journal != filepath.Join(work, DefaultJournal) {
		t.Fatalf("unexpected journal %q", resolved.Journal)
	}
	if resolved.Publish.ReposDir != filepath.Join(work, "repos") {
		t.Fatalf("unexpected repos dir %q", resolved.Publish.ReposDir)
	}
	want := []Target{{Channel: "core", Dir: filepath.Join(work, "core")}, {Channel: "extra", Dir: filepath.Join(work, "extra")}}
	if len(resolved.Publish.Targets) != 2 || resolved.Publish.Targets[0] != want[0] || resolved.Publish.Targets[1] != want[1] {
		t.Fatalf("unexpected targets %+v", resolved.Publish.Targets)
	}
}

func TestSelectChannels(t *testing.T) {
	cfg := Default()

	all, err := cfg.SelectChannels(nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected all channels, got %v (%v)", all, err)
	}

	picked, err := cfg.SelectChannels([]string{"extra"})
	if err != nil || len(picked) != 1 || picked[0].Name != "extra" {
		t.Fatalf("expected extra, got %v (%v)", picked, err)
	}

	if _, err := cfg.FindChannel("multilib"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}
