package ident

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Clock interface {
	Now() time.Time
}

// RunIDGenerator issues lexically sortable reconciliation run ids.
type RunIDGenerator struct {
	mu      sync.Mutex
	clock   Clock
	entropy *ulid.MonotonicEntropy
}

func NewRunIDGenerator(clock Clock) *RunIDGenerator {
	return newRunIDGenerator(clock, rand.Reader)
}

func newRunIDGenerator(clock Clock, source io.Reader) *RunIDGenerator {
	return &RunIDGenerator{clock: clock, entropy: ulid.Monotonic(source, 0)}
}

func (g *RunIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.clock.Now().UTC()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// RunTime recovers the time a run id was issued at.
func RunTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()).UTC(), nil
}
