package domain

// Snapshot is the desired state of a channel on a given day.
type Snapshot struct {
	Channel  Channel
	Date     string
	Packages map[string][]PackageRecord
	Digest   string
}

func (s Snapshot) Records(subChannel string) []PackageRecord {
	if s.Packages == nil {
		return nil
	}
	return s.Packages[subChannel]
}

func (s Snapshot) Total() int {
	total := 0
	for _, records := range s.Packages {
		total += len(records)
	}
	return total
}
