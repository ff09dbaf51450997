package repod

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/execrunner"
	"github.com/osvaldoandrade/pkgmirror/internal/infra/schema"
)

type fakeRunner struct {
	commands []execrunner.Command
	failOn   string
}

func (f *fakeRunner) Run(ctx context.Context, cmd execrunner.Command, opts execrunner.RunOptions) execrunner.Result {
	f.commands = append(f.commands, cmd)
	if f.failOn != "" && cmd.Name == f.failOn {
		return execrunner.Result{Command: cmd, ExitCode: 8, Attempts: 1}
	}
	return execrunner.Result{Command: cmd, ExitCode: 0, Attempts: 1}
}

func TestImportDownloadsAndImportsEachSubChannel(t *testing.T) {
	work := t.TempDir()
	runner := &fakeRunner{}
	provider := NewProvider(runner, Options{WorkDir: work})
	ch := domain.NewChannel("core")

	if err := provider.Import(context.Background(), ch); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if len(runner.commands) != 6 {
		t.Fatalf("expected 6 commands, got %d", len(runner.commands))
	}

	wget := runner.commands[2]
	if wget.Name != "wget" {
		t.Fatalf("expected wget, got %s", wget.Name)
	}
	wantURL := "https://geo.mirror.pkgbuild.com/core-testing/os/x86_64/core-testing.db.tar.gz"
	if got := wget.Args[len(wget.Args)-1]; got != wantURL {
		t.Fatalf("expected url %s, got %s", wantURL, got)
	}

	flags := []string{}
	for _, cmd := range runner.commands {
		if cmd.Name != "repod-file" {
			continue
		}
		tail := cmd.Args[len(cmd.Args)-2:]
		flags = append(flags, strings.Join(tail, " "))
	}
	want := []string{
		filepath.Join(work, "core-x86_64", "core.db.tar.gz") + " core",
		"-T core",
		"-S core",
	}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("expected import flags %v, got %v", want, flags)
	}

	conf, err := os.ReadFile(filepath.Join(work, "core-x86_64", "default.conf"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var decoded repodConfig
	if _, err := toml.Decode(string(conf), &decoded); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if len(decoded.Repositories) != 1 || decoded.Repositories[0].Testing != "core-testing" {
		t.Fatalf("unexpected repositories %+v", decoded.Repositories)
	}
	if decoded.Repositories[0].ManagementRepo.Directory != filepath.Join(work, "core-x86_64", "management") {
		t.Fatalf("unexpected management dir %q", decoded.Repositories[0].ManagementRepo.Directory)
	}
}

func TestImportFailsOnCommandError(t *testing.T) {
	runner := &fakeRunner{failOn: "repod-file"}
	provider := NewProvider(runner, Options{WorkDir: t.TempDir()})

	err := provider.Import(context.Background(), domain.NewChannel("extra"))
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	if len(runner.commands) != 2 {
		t.Fatalf("expected import to stop after the failing command, got %d commands", len(runner.commands))
	}
}

func writeMetadata(t *testing.T, dir, file, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPackagesSortedByFilename(t *testing.T) {
	work := t.TempDir()
	provider := NewProvider(&fakeRunner{}, Options{WorkDir: work, Validator: &schema.PackageMetadataValidator{}})
	ch := domain.NewChannel("core")
	dir := filepath.Join(work, "core-x86_64", "management", "x86_64", "core")
	writeMetadata(t, dir, "zlib.json", `{"base":"zlib","version":"1:1.3.1-2","packages":[]}`)
	writeMetadata(t, dir, "acl.json", `{"base":"acl","version":"2.3.2-1"}`)

	records, err := provider.Packages(context.Background(), ch, "core")
	if err != nil {
		t.Fatalf("Packages returned error: %v", err)
	}
	want := []domain.PackageRecord{
		{Name: "acl", Version: "2.3.2-1"},
		{Name: "zlib", Version: "1:1.3.1-2"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("expected %v, got %v", want, records)
	}
}

func TestPackagesMissingDirectoryIsEmpty(t *testing.T) {
	provider := NewProvider(&fakeRunner{}, Options{WorkDir: t.TempDir()})
	records, err := provider.Packages(context.Background(), domain.NewChannel("core"), "core-staging")
	if err != nil {
		t.Fatalf("Packages returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %v", records)
	}
}

func TestPackagesRejectsInvalidMetadata(t *testing.T) {
	work := t.TempDir()
	provider := NewProvider(&fakeRunner{}, Options{WorkDir: work, Validator: &schema.PackageMetadataValidator{}})
	dir := filepath.Join(work, "core-x86_64", "management", "x86_64", "core")
	writeMetadata(t, dir, "broken.json", `{"version":"1.0"}`)

	if _, err := provider.Packages(context.Background(), domain.NewChannel("core"), "core"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCloseKeepsCallerWorkDir(t *testing.T) {
	work := t.TempDir()
	provider := NewProvider(&fakeRunner{}, Options{WorkDir: work})
	if err := provider.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := os.Stat(work); err != nil {
		t.Fatalf("expected work dir to remain: %v", err)
	}
}
