package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs returns "<prefix>-1", "<prefix>-2", ... so traces and golden
// files are stable across runs.
//
// Thread-safety: FixedIDs is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDs creates a generator. An empty prefix means "test".
func NewFixedIDs(prefix string) *FixedIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &FixedIDs{prefix: prefix}
}

// New returns the next id.
func (g *FixedIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
