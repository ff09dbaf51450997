package cli

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/osvaldoandrade/pkgmirror/internal/config"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
	"github.com/spf13/cobra"
)

type RootOptions struct {
	ConfigPath string
	CacheDir   string
	WorkDir    string
	Journal    string
	MaxPasses  int
	Verbose    bool
	JSONOutput bool
	LogLevel   string
	LogFormat  string

	Config config.Config
	Logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &RootOptions{
		ConfigPath: envDefault(config.EnvConfig, ""),
		LogLevel:   envDefault("PKGMIRROR_LOG_LEVEL", "info"),
		LogFormat:  envDefault("PKGMIRROR_LOG_FORMAT", "text"),
		Verbose:    envBoolDefault("PKGMIRROR_VERBOSE", false),
	}
	cmd := &cobra.Command{
		Use:           "pkgmirror",
		Short:         "Mirror Arch Linux package repositories at their released tags",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := platform.ConfigureLogger(platform.LoggerOptions{
				Level:   opts.LogLevel,
				Format:  opts.LogFormat,
				Verbose: opts.Verbose,
			}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts.Logger = logger
			return opts.loadConfig(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Path to the TOML config file")
	flags.StringVar(&opts.CacheDir, "cache-dir", "", "Directory holding the package repository checkouts")
	flags.StringVar(&opts.WorkDir, "work-dir", "", "Directory for snapshot files and publishing repositories")
	flags.StringVar(&opts.Journal, "journal", "", "Path to the run journal database (empty uses the config value)")
	flags.IntVar(&opts.MaxPasses, "max-passes", 0, "Maximum reconciliation passes per channel")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "Echo the output of external commands")
	flags.BoolVar(&opts.JSONOutput, "json", false, "Emit JSON output")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "Log format (text, json)")

	cmd.AddCommand(
		newSyncCmd(opts),
		newStatusCmd(opts),
		newSnapshotCmd(opts),
		newHistoryCmd(opts),
	)

	return cmd
}

// loadConfig merges the config file, the environment and explicit flags, in
// that order of precedence from lowest to highest.
func (opts *RootOptions) loadConfig(cmd *cobra.Command) error {
	explicit := cmd.Flags().Changed("config") || strings.TrimSpace(os.Getenv(config.EnvConfig)) != ""
	cfg, err := config.Load(opts.ConfigPath, explicit)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.CacheDir
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = opts.WorkDir
	}
	if flags.Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if flags.Changed("max-passes") {
		cfg.MaxPasses = opts.MaxPasses
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	resolved, err := cfg.Resolve()
	if err != nil {
		return err
	}
	opts.Config = resolved
	return nil
}

func envDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envBoolDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
