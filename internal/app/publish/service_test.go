package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type fakeGit struct {
	ops        []string
	commitMsgs []string
	clean      map[string]bool
	pushErr    error
}

func (f *fakeGit) SwitchBranch(ctx context.Context, repoPath, branch string) error {
	f.ops = append(f.ops, "switch "+filepath.Base(repoPath)+" "+branch)
	return nil
}

func (f *fakeGit) ClearWorktree(ctx context.Context, repoPath string) error {
	f.ops = append(f.ops, "clear "+filepath.Base(repoPath))
	return nil
}

func (f *fakeGit) CommitAll(ctx context.Context, repoPath, message string) (bool, error) {
	f.ops = append(f.ops, "commit "+filepath.Base(repoPath))
	f.commitMsgs = append(f.commitMsgs, message)
	return !f.clean[filepath.Base(repoPath)], nil
}

func (f *fakeGit) Tag(ctx context.Context, repoPath, name, message string) error {
	f.ops = append(f.ops, "tag "+filepath.Base(repoPath)+" "+name)
	return nil
}

func (f *fakeGit) Push(ctx context.Context, repoPath string, refs []string) error {
	f.ops = append(f.ops, "push "+filepath.Base(repoPath)+" "+strings.Join(refs, ","))
	return f.pushErr
}

type mirrorCall struct {
	src      string
	dst      string
	excludes []string
}

type fakeSyncer struct {
	calls []mirrorCall
}

func (f *fakeSyncer) Mirror(ctx context.Context, src, dst string, excludes []string) error {
	f.calls = append(f.calls, mirrorCall{src: src, dst: dst, excludes: excludes})
	return nil
}

type fakeFiles struct {
	files  map[string]string
	writes []string
}

func (f *fakeFiles) Find(ctx context.Context, root, name string) ([]string, error) {
	var out []string
	for path := range f.files {
		if strings.HasPrefix(path, root+string(filepath.Separator)) && filepath.Base(path) == name {
			out = append(out, path)
		}
	}
	return out, nil
}

func (f *fakeFiles) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return []byte(f.files[path]), nil
}

func (f *fakeFiles) WriteFile(ctx context.Context, path string, data []byte) error {
	f.files[path] = string(data)
	f.writes = append(f.writes, path)
	return nil
}

type layout struct {
	cache string
	repos string
	core  string
	extra string
}

func newLayout(t *testing.T) layout {
	t.Helper()
	root := t.TempDir()
	l := layout{
		cache: filepath.Join(root, "cache"),
		repos: filepath.Join(root, "repos"),
		core:  filepath.Join(root, "core"),
		extra: filepath.Join(root, "extra"),
	}
	for _, dir := range []string{l.cache, l.repos, l.core, l.extra} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return l
}

func (l layout) config() Config {
	return Config{
		CacheRoot: l.cache,
		ReposDir:  l.repos,
		Targets:   []Target{{Channel: "core", Dir: l.core}, {Channel: "extra", Dir: l.extra}},
	}
}

func TestPublishRunsStepsInOrder(t *testing.T) {
	l := newLayout(t)
	git := &fakeGit{clean: map[string]bool{"extra": true}}
	syncer := &fakeSyncer{}
	files := &fakeFiles{files: map[string]string{
		filepath.Join(l.repos, "core", "bash", "PKGBUILD"):  "arch=('x86_64')\n",
		filepath.Join(l.repos, "extra", "any", "PKGBUILD"): "arch=('any')\n",
	}}
	svc := NewService(git, syncer, files, l.config(), nil)

	report, err := svc.Publish(context.Background(), "20240301")
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	wantOps := []string{
		"switch repos main", "clear repos", "commit repos", "push repos main",
		"switch core arch", "clear core", "commit core", "tag core x86.20240301", "push core arch,x86.20240301",
		"switch extra arch", "clear extra", "commit extra", "tag extra x86.20240301", "push extra arch,x86.20240301",
	}
	if !reflect.DeepEqual(git.ops, wantOps) {
		t.Fatalf("expected ops %v, got %v", wantOps, git.ops)
	}

	wantMirrors := []mirrorCall{
		{src: l.cache, dst: l.repos, excludes: []string{".git", ".SRCINFO"}},
		{src: filepath.Join(l.repos, "core"), dst: l.core, excludes: []string{".git", ".version"}},
		{src: filepath.Join(l.repos, "extra"), dst: l.extra, excludes: []string{".git", ".version"}},
	}
	if !reflect.DeepEqual(syncer.calls, wantMirrors) {
		t.Fatalf("expected mirrors %+v, got %+v", wantMirrors, syncer.calls)
	}

	for _, msg := range git.commitMsgs {
		if msg != "import repos from Archlinux\n\ndate: 20240301\n" {
			t.Fatalf("unexpected commit message %q", msg)
		}
	}

	if report.Patched != 1 || len(files.writes) != 1 {
		t.Fatalf("expected one patched PKGBUILD, got %d", report.Patched)
	}
	if got := files.files[filepath.Join(l.repos, "core", "bash", "PKGBUILD")]; got != "arch=('loong64' 'x86_64')\n" {
		t.Fatalf("unexpected patched PKGBUILD %q", got)
	}
	if !reflect.DeepEqual(report.Committed, []string{l.repos, l.core}) {
		t.Fatalf("unexpected committed dirs %v", report.Committed)
	}
	if !reflect.DeepEqual(report.Tags, []string{"core@x86.20240301", "extra@x86.20240301"}) {
		t.Fatalf("unexpected tags %v", report.Tags)
	}
}

func TestPublishRequiresTargets(t *testing.T) {
	l := newLayout(t)
	if err := os.RemoveAll(l.extra); err != nil {
		t.Fatalf("remove: %v", err)
	}
	git := &fakeGit{}
	svc := NewService(git, &fakeSyncer{}, &fakeFiles{files: map[string]string{}}, l.config(), nil)

	_, err := svc.Publish(context.Background(), "20240301")
	if !errors.Is(err, ErrPublishTargetMissing) {
		t.Fatalf("expected ErrPublishTargetMissing, got %v", err)
	}
	if len(git.ops) != 0 {
		t.Fatalf("expected no git operations, got %v", git.ops)
	}
}

func TestPublishWithoutTargets(t *testing.T) {
	l := newLayout(t)
	cfg := l.config()
	cfg.Targets = nil
	svc := NewService(&fakeGit{}, &fakeSyncer{}, &fakeFiles{files: map[string]string{}}, cfg, nil)

	if _, err := svc.Publish(context.Background(), "20240301"); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestPublishStopsOnPushFailure(t *testing.T) {
	l := newLayout(t)
	boom := errors.New("rejected")
	git := &fakeGit{pushErr: boom}
	svc := NewService(git, &fakeSyncer{}, &fakeFiles{files: map[string]string{}}, l.config(), nil)

	_, err := svc.Publish(context.Background(), "20240301")
	if !errors.Is(err, boom) {
		t.Fatalf("expected push error, got %v", err)
	}
	if last := git.ops[len(git.ops)-1]; last != "push repos main" {
		t.Fatalf("expected to stop after aggregate push, got %q", last)
	}
}

func TestTagNameUsesPrefix(t *testing.T) {
	svc := NewService(&fakeGit{}, &fakeSyncer{}, &fakeFiles{}, Config{TagPrefix: "la64"}, nil)
	if got := svc.TagName("20240301"); got != "la64.20240301" {
		t.Fatalf("expected la64.20240301, got %q", got)
	}
}
