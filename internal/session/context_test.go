package session

import (
	"fmt"
	"strings"
	"testing"
)

func TestAccumulatorWindow(t *testing.T) {
	a := NewAccumulator()
	if a.Window() != "" {
		t.Fatalf("empty accumulator produced %q", a.Window())
	}

	a.RecordCell("df = pd.read_csv('sales.csv')")
	a.RecordSummary("df = pd.read_csv('sales.csv') -> loaded 120 rows")

	w := a.Window()
	if !strings.Contains(w, "Notebook cells (most recent last):") {
		t.Fatalf("missing cells header: %q", w)
	}
	if !strings.Contains(w, "Recent outcomes:") {
		t.Fatalf("missing outcomes header: %q", w)
	}
	if !strings.Contains(w, "- df = pd.read_csv('sales.csv') -> loaded 120 rows") {
		t.Fatalf("missing summary bullet: %q", w)
	}
}

func TestAccumulatorBounds(t *testing.T) {
	a := NewAccumulator()
	for i := 0; i < 30; i++ {
		a.RecordCell(fmt.Sprintf("cell-%d", i))
		a.RecordSummary(fmt.Sprintf("summary-%d", i))
	}

	w := a.Window()
	if strings.Contains(w, "cell-9\n") {
		t.Fatal("oldest cells were not evicted")
	}
	if !strings.Contains(w, "cell-29") {
		t.Fatal("newest cell missing")
	}
	if strings.Contains(w, "summary-19\n") {
		t.Fatal("oldest summaries were not evicted")
	}
	if !strings.Contains(w, "summary-29") {
		t.Fatal("newest summary missing")
	}
}

func TestAccumulatorSkipsBlankSummaries(t *testing.T) {
	a := NewAccumulator()
	a.RecordSummary("   ")
	a.RecordSummary("")
	if a.Window() != "" {
		t.Fatalf("blank summaries were recorded: %q", a.Window())
	}
}
