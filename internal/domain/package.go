package domain

import "strings"

// PackageRecord is a package base and the upstream version it is published at.
type PackageRecord struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NormalizeVersion maps an upstream version to the tag it is published under.
// Epoch separators are not legal in tags, so "1:2.3-4" becomes "1-2.3-4".
func NormalizeVersion(version string) string {
	return strings.ReplaceAll(version, ":", "-")
}

func (r PackageRecord) Tag() string {
	return NormalizeVersion(r.Version)
}
