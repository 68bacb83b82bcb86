package session

import (
	"context"
	"sync"
)

// Gate manages the pause/resume handshake for clarification answers. One
// outstanding wait at a time per session; Submit records unconditionally
// (idempotent overwrite) and releases the wait only once every expected
// term has an answer.
type Gate struct {
	mu       sync.Mutex
	expected map[string]struct{}
	answers  map[string]string
	release  chan struct{}
}

// NewGate creates a gate with nothing expected.
func NewGate() *Gate {
	return &Gate{
		expected: make(map[string]struct{}),
		answers:  make(map[string]string),
	}
}

// Expect records the set of terms the session is waiting on.
func (g *Gate) Expect(terms []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expected = make(map[string]struct{}, len(terms))
	for _, t := range terms {
		g.expected[t] = struct{}{}
	}
}

// Submit records an answer and releases the waiter when the expected set is
// fully answered.
func (g *Gate) Submit(term, answer string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers[term] = answer
	if g.release != nil && g.satisfiedLocked() {
		close(g.release)
		g.release = nil
	}
}

// Await blocks until every expected term has an answer, then returns a
// snapshot of the answer set. An empty expected set resolves immediately.
func (g *Gate) Await(ctx context.Context) (map[string]string, error) {
	g.mu.Lock()
	if g.satisfiedLocked() {
		answers := g.snapshotLocked()
		g.mu.Unlock()
		return answers, nil
	}
	release := make(chan struct{})
	g.release = release
	g.mu.Unlock()

	select {
	case <-release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	answers := g.snapshotLocked()
	g.mu.Unlock()
	return answers, nil
}

func (g *Gate) satisfiedLocked() bool {
	for term := range g.expected {
		if _, ok := g.answers[term]; !ok {
			return false
		}
	}
	return true
}

func (g *Gate) snapshotLocked() map[string]string {
	out := make(map[string]string, len(g.answers))
	for k, v := range g.answers {
		out[k] = v
	}
	return out
}
