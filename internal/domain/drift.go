package domain

import "fmt"

type DriftKind string

const (
	DriftMissing    DriftKind = "missing"
	DriftMismatched DriftKind = "mismatched"
	DriftOrphan     DriftKind = "orphan"
)

// Drift is a single difference between a snapshot and the local cache tree.
type Drift struct {
	Kind       DriftKind
	SubChannel string
	Name       string
	Version    string
	Tag        string
}

func (d Drift) String() string {
	switch d.Kind {
	case DriftMissing:
		return fmt.Sprintf("%s/%s does not exist", d.SubChannel, d.Name)
	case DriftMismatched:
		tag := d.Tag
		if tag == "" {
			tag = "(unknown)"
		}
		return fmt.Sprintf("%s/%s-%s: tag is %s", d.SubChannel, d.Name, d.Version, tag)
	case DriftOrphan:
		return fmt.Sprintf("%s is not in %s", d.Name, d.SubChannel)
	default:
		return fmt.Sprintf("%s %s/%s", d.Kind, d.SubChannel, d.Name)
	}
}
