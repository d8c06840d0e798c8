package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs issues predictable permanent identities for tests and golden
// traces: 00000000-0000-7000-8000-000000000001, ...000002, and so on.
//
// The shape matches a UUIDv7 string so code that logs or displays identities
// behaves as in production. It never runs out.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu sync.Mutex
	n  int64
}

// NewSequentialIDs creates a generator whose first identity ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Generate returns the next identity.
// Implements store.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", g.n)
}

// FixedGenerator returns predetermined identities in order.
//
// Panics once all identities have been consumed, so a test that commits
// more records than it declared fails loudly.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined identity.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all identities exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
