package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// SwitchBranch force-checks-out branch, creating it from HEAD when it does not
// exist locally.
func (s *Store) SwitchBranch(ctx context.Context, repoPath, branch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("open git repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	existing := true
	if _, err := repo.Reference(ref, false); err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("read branch %s: %w", branch, err)
		}
		existing = false
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: ref, Create: !existing, Force: true}); err != nil {
		return fmt.Errorf("switch to %s: %w", branch, err)
	}
	return nil
}

// ClearWorktree removes every top-level entry except the .git directory.
func (s *Store) ClearWorktree(ctx context.Context, repoPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(repoPath)
	if err != nil {
		return fmt.Errorf("list worktree: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(repoPath, entry.Name())); err != nil {
			return fmt.Errorf("clear worktree: %w", err)
		}
	}
	return nil
}

// CommitAll stages every change and commits it. It reports false when the
// worktree was already clean.
func (s *Store) CommitAll(ctx context.Context, repoPath, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return false, fmt.Errorf("open git repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, fmt.Errorf("stage changes: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}

	if _, err := worktree.Commit(message, &git.CommitOptions{All: true, Author: s.signature()}); err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return false, nil
		}
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Tag creates an annotated tag on HEAD. An existing tag of the same name is
// left untouched.
func (s *Store) Tag(ctx context.Context, repoPath, name, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("open git repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}

	_, err = repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{Tagger: s.signature(), Message: message})
	if err != nil {
		if errors.Is(err, git.ErrTagExists) {
			return nil
		}
		return fmt.Errorf("create tag %s: %w", name, err)
	}
	return nil
}
