package session

import (
	"strings"
	"sync"
)

const (
	maxCells     = 20
	maxSummaries = 10
)

// Accumulator maintains the bounded rolling log used as planning context:
// recent notebook cell contents and short outcome summaries. It is
// deliberately lossy; full history is never retained, to bound prompt size.
type Accumulator struct {
	mu        sync.Mutex
	cells     []string
	summaries []string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// RecordCell appends one notebook cell's content, evicting the oldest once
// the window is full.
func (a *Accumulator) RecordCell(content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cells = append(a.cells, content)
	if len(a.cells) > maxCells {
		a.cells = a.cells[len(a.cells)-maxCells:]
	}
}

// RecordSummary appends one outcome summary line.
func (a *Accumulator) RecordSummary(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, line)
	if len(a.summaries) > maxSummaries {
		a.summaries = a.summaries[len(a.summaries)-maxSummaries:]
	}
}

// Window concatenates both sequences for prompt construction.
func (a *Accumulator) Window() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	if len(a.cells) > 0 {
		b.WriteString("Notebook cells (most recent last):\n")
		for _, c := range a.cells {
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	if len(a.summaries) > 0 {
		b.WriteString("Recent outcomes:\n")
		for _, s := range a.summaries {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return b.String()
}
