package oracle

import (
	"context"
	"sync"

	"github.com/datapad/notebook-agent/internal/domain"
)

// Mock is a scripted Oracle for tests and for running the service without a
// completion backend. NextStep responses are consumed in order; once the
// script is exhausted every further turn returns done.
type Mock struct {
	mu sync.Mutex

	Clarifications []domain.ClarificationItem
	Steps          []*NextStepResponse
	RepairWith     string
	EditChunks     []string

	// Call counters for assertions.
	ClarifyCalls int
	StepCalls    int
	RepairCalls  int
	EditCalls    int
}

// NewMock creates an empty mock: no clarifications, immediate done.
func NewMock() *Mock {
	return &Mock{}
}

var (
	_ Oracle = (*Mock)(nil)
	_ Editor = (*Mock)(nil)
)

func (m *Mock) Clarify(_ context.Context, _ ClarifyRequest) (*ClarifyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClarifyCalls++
	return &ClarifyResponse{Clarifications: m.Clarifications}, nil
}

func (m *Mock) NextStep(_ context.Context, _ NextStepRequest) (*NextStepResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepCalls++
	if len(m.Steps) == 0 {
		return &NextStepResponse{Event: StepDoneEvent}, nil
	}
	step := m.Steps[0]
	m.Steps = m.Steps[1:]
	return step, nil
}

func (m *Mock) Repair(_ context.Context, _ RepairRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RepairCalls++
	return m.RepairWith, nil
}

func (m *Mock) EditSQL(_ context.Context, _ SQLEditRequest, emit func(string) error) error {
	return m.edit(emit)
}

func (m *Mock) EditPython(_ context.Context, _ PythonEditRequest, emit func(string) error) error {
	return m.edit(emit)
}

func (m *Mock) edit(emit func(string) error) error {
	m.mu.Lock()
	m.EditCalls++
	chunks := m.EditChunks
	m.mu.Unlock()
	for _, chunk := range chunks {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
