package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

var ErrNoTags = errors.New("no tag reachable from HEAD")

// CurrentTag reports what `git describe --tags HEAD` would print: the tag on
// HEAD, or "<tag>-<distance>-g<abbrev>" for the nearest tagged ancestor.
func (s *Store) CurrentTag(ctx context.Context, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open git repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}

	tags, err := tagsByCommit(repo)
	if err != nil {
		return "", err
	}
	if names, ok := tags[head.Hash()]; ok {
		return names[0], nil
	}

	commits, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return "", fmt.Errorf("walk history: %w", err)
	}
	defer commits.Close()

	distance := 0
	found := ""
	err = commits.ForEach(func(commit *object.Commit) error {
		if names, ok := tags[commit.Hash]; ok {
			found = names[0]
			return storer.ErrStop
		}
		distance++
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return "", fmt.Errorf("walk history: %w", err)
	}
	if found == "" {
		return "", ErrNoTags
	}
	return fmt.Sprintf("%s-%d-g%s", found, distance, head.Hash().String()[:7]), nil
}

// tagsByCommit maps commit hashes to the sorted names of the tags (annotated
// or lightweight) that point at them.
func tagsByCommit(repo *git.Repository) (map[plumbing.Hash][]string, error) {
	refs, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer refs.Close()

	out := make(map[plumbing.Hash][]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		tag, err := repo.TagObject(ref.Hash())
		switch {
		case err == nil:
			commit, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = commit.Hash
		case errors.Is(err, plumbing.ErrObjectNotFound):
		default:
			return fmt.Errorf("read tag %s: %w", ref.Name().Short(), err)
		}
		out[target] = append(out[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	for hash := range out {
		sort.Strings(out[hash])
	}
	return out, nil
}
