package testutil

import (
	"fmt"
	"sync"
)

// SequenceRunIDs generates predictable run ids for store and CLI tests.
//
// The first call to Generate returns "<prefix>-0001". Reset starts the
// sequence over so the same test can run twice with identical ids.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceRunIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequenceRunIDs creates a generator. An empty prefix becomes "run".
func NewSequenceRunIDs(prefix string) *SequenceRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequenceRunIDs{prefix: prefix}
}

// Generate returns the next run id.
func (g *SequenceRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Reset restarts the sequence.
func (g *SequenceRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
