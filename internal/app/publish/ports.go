package publish

import "context"

type Git interface {
	SwitchBranch(ctx context.Context, repoPath, branch string) error
	ClearWorktree(ctx context.Context, repoPath string) error
	CommitAll(ctx context.Context, repoPath, message string) (bool, error)
	Tag(ctx context.Context, repoPath, name, message string) error
	Push(ctx context.Context, repoPath string, refs []string) error
}

type Syncer interface {
	Mirror(ctx context.Context, src, dst string, excludes []string) error
}

type Files interface {
	Find(ctx context.Context, root, name string) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}
