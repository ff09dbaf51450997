package rsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/osvaldoandrade/pkgmirror/internal/infra/execrunner"
)

var ErrSyncFailed = errors.New("rsync failed")

type Runner interface {
	Run(ctx context.Context, cmd execrunner.Command, opts execrunner.RunOptions) execrunner.Result
}

// Syncer mirrors directory trees with rsync.
type Syncer struct {
	runner Runner
	quiet  bool
}

func NewSyncer(runner Runner, quiet bool) *Syncer {
	return &Syncer{runner: runner, quiet: quiet}
}

// Mirror makes dst an exact copy of the content of src, deleting extraneous
// files. Excluded names are neither copied nor deleted.
func (s *Syncer) Mirror(ctx context.Context, src, dst string, excludes []string) error {
	args := []string{"-a", "--delete"}
	for _, pattern := range excludes {
		args = append(args, "--exclude="+pattern)
	}
	args = append(args, withSlash(src), withSlash(dst))

	result := s.runner.Run(ctx, execrunner.Command{Name: "rsync", Args: args}, execrunner.RunOptions{Attempts: 1, Quiet: s.quiet})
	if !result.OK() {
		return fmt.Errorf("%w: %s exited %d", ErrSyncFailed, result.Command, result.ExitCode)
	}
	return nil
}

func withSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}
