package publish

import (
	"context"
	"strings"
)

const extraArch = "loong64"

// AddLoong64 lists loong64 in front of the x86 entries of a PKGBUILD arch
// line, following the line's quoting style. Other lines are returned as is.
func AddLoong64(line string) string {
	if !strings.HasPrefix(line, "arch") || strings.Contains(line, extraArch) {
		return line
	}
	switch {
	case strings.Contains(line, "'"):
		return strings.ReplaceAll(line, "x86_", extraArch+"' 'x86_")
	case strings.Contains(line, `"`):
		return strings.ReplaceAll(line, "x86_", extraArch+`" "x86_`)
	default:
		return strings.ReplaceAll(line, "x86_", extraArch+" x86_")
	}
}

func PatchPKGBUILD(content []byte) []byte {
	lines := strings.SplitAfter(string(content), "\n")
	for i, line := range lines {
		lines[i] = AddLoong64(line)
	}
	return []byte(strings.Join(lines, ""))
}

// patchTree applies PatchPKGBUILD to every PKGBUILD below root and reports
// how many files changed.
func (s *Service) patchTree(ctx context.Context, root string) (int, error) {
	paths, err := s.files.Find(ctx, root, "PKGBUILD")
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, path := range paths {
		data, err := s.files.ReadFile(ctx, path)
		if err != nil {
			return changed, err
		}
		patched := PatchPKGBUILD(data)
		if string(patched) == string(data) {
			continue
		}
		if err := s.files.WriteFile(ctx, path, patched); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}
