// Package schema discovers the tabular data available to a session: static
// CSV files in the workspace data directory, merged with tables derived
// from the sandbox namespace after each execution.
package schema

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Column is one column of a tabular object.
type Column struct {
	Name    string `json:"name"`
	Numeric bool   `json:"numeric"`
}

// Table is one discoverable tabular object: a CSV file or an in-namespace
// dataframe.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Provider merges the static file schema with execution-derived tables.
// Derived tables win on name collision since they reflect live state.
type Provider struct {
	dataDir string

	mu      sync.RWMutex
	files   map[string]Table
	derived map[string]Table
}

// NewProvider creates a provider rooted at dataDir and scans it once.
// A missing or unreadable directory is not an error: the schema is simply
// empty until Refresh succeeds.
func NewProvider(dataDir string) *Provider {
	p := &Provider{
		dataDir: dataDir,
		files:   make(map[string]Table),
		derived: make(map[string]Table),
	}
	_ = p.Refresh()
	return p
}

// Refresh rescans the data directory for CSV files.
func (p *Provider) Refresh() error {
	entries, err := os.ReadDir(p.dataDir)
	if err != nil {
		return fmt.Errorf("read data dir: %w", err)
	}

	files := make(map[string]Table)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		table, err := sniffCSV(filepath.Join(p.dataDir, entry.Name()))
		if err != nil {
			continue
		}
		table.Name = entry.Name()
		files[table.Name] = table
	}

	p.mu.Lock()
	p.files = files
	p.mu.Unlock()
	return nil
}

// SetDerived replaces the execution-derived tables.
func (p *Provider) SetDerived(tables []Table) {
	derived := make(map[string]Table, len(tables))
	for _, t := range tables {
		derived[t.Name] = t
	}
	p.mu.Lock()
	p.derived = derived
	p.mu.Unlock()
}

// Lookup returns the columns of the named table. Derived tables are
// preferred over file tables.
func (p *Provider) Lookup(name string) ([]Column, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.derived[name]; ok {
		return t.Columns, true
	}
	if t, ok := p.files[name]; ok {
		return t.Columns, true
	}
	// Dataframe names often drop the .csv suffix of the file they were
	// loaded from.
	if t, ok := p.files[name+".csv"]; ok {
		return t.Columns, true
	}
	return nil, false
}

// Tables returns all known tables, derived first, sorted by name within
// each group.
func (p *Provider) Tables() []Table {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Table, 0, len(p.derived)+len(p.files))
	for _, t := range p.derived {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	n := len(out)
	for name, t := range p.files {
		if _, ok := p.derived[name]; ok {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out[n:], func(i, j int) bool { return out[n+i].Name < out[n+j].Name })
	return out
}

// Summary renders the schema as the JSON string handed to the oracle.
func (p *Provider) Summary() string {
	tables := p.Tables()
	m := make(map[string][]string, len(tables))
	for _, t := range tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
		m[t.Name] = cols
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// sniffCSV reads the header row and one data row to guess column types.
func sniffCSV(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return Table{}, err
	}

	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: strings.TrimSpace(name)}
	}

	row, err := r.Read()
	if err != nil && err != io.EOF {
		return Table{Columns: cols}, nil
	}
	for i, v := range row {
		if i >= len(cols) {
			break
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cols[i].Numeric = true
		}
	}
	return Table{Columns: cols}, nil
}
