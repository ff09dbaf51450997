package jsonpatch

import (
	"context"
	"fmt"

	"github.com/evanphx/json-patch/v5"
)

type Differ struct{}

// MergeDiff returns the RFC 7386 merge patch that turns original into modified.
func (Differ) MergeDiff(ctx context.Context, original, modified []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return nil, fmt.Errorf("create merge patch: %w", err)
	}
	return patch, nil
}

// Apply replays a merge patch produced by MergeDiff.
func (Differ) Apply(ctx context.Context, doc, patch []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, fmt.Errorf("apply merge patch: %w", err)
	}
	return out, nil
}
