package sandbox

import (
	"context"
	"sync"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/schema"
)

// Fake is an in-process Runner for tests. Behavior is overridden per test
// through the hooks; the zero value succeeds with empty output.
type Fake struct {
	mu sync.Mutex

	ExecuteFunc func(code string) domain.ExecutionResult
	TablesFunc  func() []schema.Table

	// Executed records every snippet passed to Execute, in order.
	Executed []string

	closed bool
}

var _ Runner = (*Fake)(nil)

func (f *Fake) Execute(_ context.Context, code string) (domain.ExecutionResult, error) {
	f.mu.Lock()
	f.Executed = append(f.Executed, code)
	fn := f.ExecuteFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(code), nil
	}
	return domain.ExecutionResult{Status: domain.StatusOK}, nil
}

func (f *Fake) Tables(_ context.Context) ([]schema.Table, error) {
	f.mu.Lock()
	fn := f.TablesFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(), nil
	}
	return nil, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
