package rsync

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/osvaldoandrade/pkgmirror/internal/infra/execrunner"
)

type fakeRunner struct {
	cmd      execrunner.Command
	opts     execrunner.RunOptions
	exitCode int
}

func (f *fakeRunner) Run(ctx context.Context, cmd execrunner.Command, opts execrunner.RunOptions) execrunner.Result {
	f.cmd = cmd
	f.opts = opts
	return execrunner.Result{Command: cmd, ExitCode: f.exitCode, Attempts: 1}
}

func TestMirrorBuildsCommand(t *testing.T) {
	runner := &fakeRunner{}
	syncer := NewSyncer(runner, true)

	if err := syncer.Mirror(context.Background(), "/cache", "/work/repos/", []string{".git", ".SRCINFO"}); err != nil {
		t.Fatalf("Mirror returned error: %v", err)
	}

	want := []string{"-a", "--delete", "--exclude=.git", "--exclude=.SRCINFO", "/cache/", "/work/repos/"}
	if runner.cmd.Name != "rsync" || !reflect.DeepEqual(runner.cmd.Args, want) {
		t.Fatalf("unexpected command %s", runner.cmd)
	}
	if runner.opts.Attempts != 1 || !runner.opts.Quiet {
		t.Fatalf("unexpected options %+v", runner.opts)
	}
}

func TestMirrorFailure(t *testing.T) {
	syncer := NewSyncer(&fakeRunner{exitCode: 23}, false)
	err := syncer.Mirror(context.Background(), "/a", "/b", nil)
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
}
