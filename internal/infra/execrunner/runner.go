package execrunner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/osvaldoandrade/pkgmirror/internal/platform"
)

// DefaultBaseDelay is the wait after the first failed attempt. Each further
// failure within the same call doubles it.
const DefaultBaseDelay = 40 * time.Second

// ExitStartFailure is reported when the process could not be started at all.
const ExitStartFailure = -1

type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

type RunOptions struct {
	Attempts int
	Quiet    bool
}

type Result struct {
	Command  Command
	ExitCode int
	Stdout   string
	Attempts int
}

func (r Result) OK() bool {
	return r.ExitCode == 0
}

type Options struct {
	Console   io.Writer
	Logger    *slog.Logger
	BaseDelay time.Duration
	Sleep     func(ctx context.Context, d time.Duration)
}

type Runner struct {
	console   io.Writer
	logger    *slog.Logger
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration)
}

func New(opts Options) *Runner {
	r := &Runner{
		console:   opts.Console,
		logger:    opts.Logger,
		baseDelay: opts.BaseDelay,
		sleep:     opts.Sleep,
	}
	if r.console == nil {
		r.console = io.Discard
	}
	if r.logger == nil {
		r.logger = platform.DiscardLogger()
	}
	if r.baseDelay <= 0 {
		r.baseDelay = DefaultBaseDelay
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	return r
}

// Run executes cmd up to opts.Attempts times, stopping at the first zero exit.
// It never fails: callers inspect Result.ExitCode.
func (r *Runner) Run(ctx context.Context, cmd Command, opts RunOptions) Result {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	logger := r.logger.With("command", cmd.String())
	if cmd.Dir != "" {
		logger = logger.With("dir", cmd.Dir)
	}
	logger.Info("run command", "attempts", attempts)

	result := Result{Command: cmd, ExitCode: ExitStartFailure}
	delay := r.baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("command canceled", "error", err)
			break
		}

		exitCode, stdout, err := r.runOnce(ctx, cmd, opts.Quiet)
		result.ExitCode = exitCode
		result.Stdout = stdout
		result.Attempts = attempt
		if exitCode == 0 {
			break
		}

		logger.Error("command failed", "attempt", attempt, "exit_code", exitCode, "error", err)
		if attempt == attempts {
			break
		}
		logger.Debug("retrying command", "delay", delay)
		r.sleep(ctx, delay)
		delay *= 2
	}
	return result
}

func (r *Runner) runOnce(ctx context.Context, cmd Command, quiet bool) (int, string, error) {
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir

	var stderr bytes.Buffer
	proc.Stderr = &stderr

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return ExitStartFailure, "", fmt.Errorf("open stdout: %w", err)
	}
	if err := proc.Start(); err != nil {
		return ExitStartFailure, "", fmt.Errorf("start %s: %w", cmd.Name, err)
	}

	var captured strings.Builder
	reader := bufio.NewReader(stdout)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			captured.WriteString(line)
			if !quiet {
				io.WriteString(r.console, line)
			}
		}
		if readErr != nil {
			break
		}
	}

	err = proc.Wait()
	if err == nil {
		return 0, captured.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		code := exitErr.ExitCode()
		if code == 0 {
			code = ExitStartFailure
		}
		return code, captured.String(), err
	}
	return ExitStartFailure, captured.String(), err
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
