package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

var ErrPushRejected = errors.New("remote rejected non-fast-forward push")

// Push publishes the named branches and tags to origin.
func (s *Store) Push(ctx context.Context, repoPath string, refs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("open git repo: %w", err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("read git remote: %w", err)
	}
	remoteURL := ""
	if cfg := remote.Config(); cfg != nil && len(cfg.URLs) > 0 {
		remoteURL = cfg.URLs[0]
	}
	auth, err := authForURL(remoteURL)
	if err != nil {
		return err
	}

	specs, err := refSpecs(repo, refs)
	if err != nil {
		return err
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   specs,
		Auth:       auth,
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if isNonFastForward(err) {
		return ErrPushRejected
	}
	if isAuthFailure(err) {
		if fallbackErr := pushWithSystemGit(ctx, repoPath, refs); fallbackErr == nil {
			return nil
		}
	}
	return fmt.Errorf("push git repo: %w", err)
}

func refSpecs(repo *git.Repository, refs []string) ([]config.RefSpec, error) {
	specs := make([]config.RefSpec, 0, len(refs))
	for _, name := range refs {
		full := "refs/heads/" + name
		if _, err := repo.Tag(name); err == nil {
			full = "refs/tags/" + name
		}
		spec := config.RefSpec(full + ":" + full)
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("invalid ref %q: %w", name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func isNonFastForward(err error) bool {
	return err != nil && strings.Contains(err.Error(), "non-fast-forward update")
}

func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication required") ||
		strings.Contains(msg, "repository not found") ||
		strings.Contains(msg, "authorization failed") ||
		strings.Contains(msg, "permission denied")
}

func pushWithSystemGit(ctx context.Context, repoPath string, refs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append([]string{"-C", repoPath, "push", "origin"}, refs...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}
