package snapshotcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

// FileCache persists snapshot package lists as indented JSON documents.
type FileCache struct{}

func (FileCache) Read(ctx context.Context, path string) (map[string][]domain.PackageRecord, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("read snapshot cache: %w", err)
	}

	packages := map[string][]domain.PackageRecord{}
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot cache %s: %w", filepath.Base(path), err)
	}
	return packages, data, nil
}

func (FileCache) Write(ctx context.Context, path string, packages map[string][]domain.PackageRecord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := Encode(packages)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write snapshot cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("commit snapshot cache: %w", err)
	}
	return data, nil
}

// Encode renders packages with sorted keys and a four space indent.
func Encode(packages map[string][]domain.PackageRecord) ([]byte, error) {
	normalized := make(map[string][]domain.PackageRecord, len(packages))
	for sub, records := range packages {
		if records == nil {
			records = []domain.PackageRecord{}
		}
		normalized[sub] = records
	}

	data, err := json.Marshal(normalized,
		json.Deterministic(true),
		jsontext.Expand(true),
		jsontext.WithIndent("    "),
	)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot cache: %w", err)
	}
	return data, nil
}
