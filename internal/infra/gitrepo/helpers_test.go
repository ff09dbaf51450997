package gitrepo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var testSignature = &object.Signature{
	Name:  "tester",
	Email: "tester@example.com",
	When:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit returned error: %v", err)
	}
	return dir, repo
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) plumbing.Hash {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree returned error: %v", err)
	}
	if _, err := worktree.Add(name); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	hash, err := worktree.Commit("update "+name, &git.CommitOptions{Author: testSignature})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	return hash
}

func lightweightTag(t *testing.T, repo *git.Repository, name string, hash plumbing.Hash) {
	t.Helper()
	if _, err := repo.CreateTag(name, hash, nil); err != nil {
		t.Fatalf("CreateTag returned error: %v", err)
	}
}

func annotatedTag(t *testing.T, repo *git.Repository, name string, hash plumbing.Hash) {
	t.Helper()
	if _, err := repo.CreateTag(name, hash, &git.CreateTagOptions{Tagger: testSignature, Message: name}); err != nil {
		t.Fatalf("CreateTag returned error: %v", err)
	}
}
