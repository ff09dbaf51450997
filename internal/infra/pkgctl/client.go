package pkgctl

import (
	"context"

	"github.com/osvaldoandrade/pkgmirror/internal/infra/execrunner"
)

const DefaultProtocol = "https"

type Runner interface {
	Run(ctx context.Context, cmd execrunner.Command, opts execrunner.RunOptions) execrunner.Result
}

// Client drives pkgctl and git to clone package repositories and switch them
// to release tags.
type Client struct {
	runner   Runner
	protocol string
	quiet    bool
}

type Options struct {
	Protocol string
	Quiet    bool
}

func NewClient(runner Runner, opts Options) *Client {
	protocol := opts.Protocol
	if protocol == "" {
		protocol = DefaultProtocol
	}
	return &Client{runner: runner, protocol: protocol, quiet: opts.Quiet}
}

// Clone clones name into repoDir at the tag for version, or switches an
// existing checkout there. It returns the exit code of the last attempt.
func (c *Client) Clone(ctx context.Context, repoDir, name, version string, attempts int) int {
	cmd := execrunner.Command{
		Name: "pkgctl",
		Args: []string{"repo", "clone", "--protocol", c.protocol, "--switch", version, name},
		Dir:  repoDir,
	}
	return c.runner.Run(ctx, cmd, execrunner.RunOptions{Attempts: attempts, Quiet: c.quiet}).ExitCode
}

func (c *Client) Fetch(ctx context.Context, pkgDir string, attempts int) int {
	cmd := execrunner.Command{
		Name: "git",
		Args: []string{"fetch", "origin"},
		Dir:  pkgDir,
	}
	return c.runner.Run(ctx, cmd, execrunner.RunOptions{Attempts: attempts, Quiet: c.quiet}).ExitCode
}
