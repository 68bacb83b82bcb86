// Package viz canonicalizes visualization inputs and detects duplicates.
//
// The planner describes y-axes in several shorthand forms: a bare column
// name, a single series-like object, a list of those, or a fully-formed
// axis object. Normalization converts all of them into the canonical
// Axis/Series shape with identifiers derived from semantic content, so that
// two structurally identical chart proposals, even produced independently
// on different planning turns, serialize to byte-identical specs.
package viz

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/schema"
)

const defaultAggregate = "sum"

// ErrNoCategoricalAxis is returned when a category-requiring chart has no
// usable x-axis column. The caller is expected to surface a narrative
// explanation instead of emitting a chart block.
var ErrNoCategoricalAxis = errors.New("no categorical column available for x-axis")

// rawInput is the loose shape the planner produces for a visualization
// block before normalization.
type rawInput struct {
	DataframeName string          `json:"dataframeName"`
	ChartType     string          `json:"chartType"`
	Title         string          `json:"title"`
	XAxis         json.RawMessage `json:"xAxis"`
	YAxes         json.RawMessage `json:"yAxes"`
}

// NormalizeInput parses a raw visualization input and returns its canonical
// form. It is a pure function of the input's semantic content.
func NormalizeInput(raw json.RawMessage) (*domain.VizInput, error) {
	var in rawInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse visualization input: %w", err)
	}
	if in.DataframeName == "" {
		return nil, errors.New("visualization input missing dataframeName")
	}

	axes, err := NormalizeAxes(in.YAxes)
	if err != nil {
		return nil, err
	}

	xAxis, err := normalizeXAxis(in.XAxis)
	if err != nil {
		return nil, err
	}

	return &domain.VizInput{
		DataframeName: in.DataframeName,
		ChartType:     in.ChartType,
		Title:         in.Title,
		XAxis:         xAxis,
		YAxes:         axes,
	}, nil
}

// NormalizeAxes converts any accepted y-axes shorthand into the canonical
// ordered axis list.
func NormalizeAxes(raw json.RawMessage) ([]domain.Axis, error) {
	if len(raw) == 0 {
		return nil, errors.New("visualization input missing yAxes")
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("parse yAxes: %w", err)
	}

	descriptors, ok := value.([]any)
	if !ok {
		descriptors = []any{value}
	}
	if len(descriptors) == 0 {
		return nil, errors.New("visualization input has empty yAxes")
	}

	axes := make([]domain.Axis, 0, len(descriptors))
	for _, d := range descriptors {
		axis, err := normalizeAxis(d)
		if err != nil {
			return nil, err
		}
		axes = append(axes, axis)
	}
	return axes, nil
}

func normalizeAxis(descriptor any) (domain.Axis, error) {
	// A fully-formed axis object carries a series list; anything else is a
	// single series-like descriptor that becomes its own axis.
	if m, ok := descriptor.(map[string]any); ok {
		if rawSeries, ok := m["series"].([]any); ok {
			series := make([]domain.Series, 0, len(rawSeries))
			for _, rs := range rawSeries {
				s, err := normalizeSeries(rs)
				if err != nil {
					return domain.Axis{}, err
				}
				series = append(series, s)
			}
			if len(series) == 0 {
				return domain.Axis{}, errors.New("axis has empty series list")
			}
			axis := domain.Axis{
				ID:     stringField(m, "id"),
				Name:   stringField(m, "name"),
				Series: series,
			}
			if axis.ID == "" {
				axis.ID = axisID(series)
			}
			return axis, nil
		}
	}

	s, err := normalizeSeries(descriptor)
	if err != nil {
		return domain.Axis{}, err
	}
	return domain.Axis{ID: axisID([]domain.Series{s}), Series: []domain.Series{s}}, nil
}

func normalizeSeries(descriptor any) (domain.Series, error) {
	switch v := descriptor.(type) {
	case string:
		s := domain.Series{Column: v, AggregateFunction: defaultAggregate}
		s.ID = seriesID(s)
		return s, nil
	case map[string]any:
		s := domain.Series{
			ID:                stringField(v, "id"),
			Column:            stringField(v, "column"),
			AggregateFunction: stringField(v, "aggregateFunction"),
			ChartType:         stringField(v, "chartType"),
			Name:              stringField(v, "name"),
			Color:             stringField(v, "color"),
			DateFormat:        stringField(v, "dateFormat"),
			NumberFormat:      stringField(v, "numberFormat"),
		}
		// field is accepted as an alias of column.
		if s.Column == "" {
			s.Column = stringField(v, "field")
		}
		if s.Column == "" {
			return domain.Series{}, errors.New("series descriptor missing column")
		}
		if s.AggregateFunction == "" {
			s.AggregateFunction = defaultAggregate
		}
		if g := stringField(v, "groupBy"); g != "" {
			s.GroupBy = &g
		}
		if groups, ok := v["groups"].([]any); ok {
			for _, g := range groups {
				if gs, ok := g.(string); ok {
					s.Groups = append(s.Groups, gs)
				}
			}
		}
		if s.ID == "" {
			s.ID = seriesID(s)
		}
		return s, nil
	default:
		return domain.Series{}, fmt.Errorf("unsupported series descriptor of type %T", descriptor)
	}
}

func normalizeXAxis(raw json.RawMessage) (*domain.XAxis, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var field string
	if err := json.Unmarshal(raw, &field); err == nil {
		return &domain.XAxis{Field: field}, nil
	}
	var x domain.XAxis
	if err := json.Unmarshal(raw, &x); err != nil {
		return nil, fmt.Errorf("parse xAxis: %w", err)
	}
	return &x, nil
}

// seriesID derives a stable identifier from the series' semantic content.
// Cosmetic fields deliberately do not participate.
func seriesID(s domain.Series) string {
	groupBy := ""
	if s.GroupBy != nil {
		groupBy = *s.GroupBy
	}
	return "ser_" + contentHash(s.Column+"|"+s.AggregateFunction+"|"+groupBy)
}

func axisID(series []domain.Series) string {
	ids := make([]string, len(series))
	for i, s := range series {
		ids[i] = s.ID
	}
	return "ax_" + contentHash(strings.Join(ids, "|"))
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:4])
}

// categoryCharts are the chart kinds that require a categorical x-axis.
var categoryCharts = map[string]bool{
	"bar":           true,
	"column":        true,
	"stackedBar":    true,
	"stackedColumn": true,
	"groupedBar":    true,
	"groupedColumn": true,
}

// ValidateAxes checks x-axis suitability for category-requiring chart kinds
// and substitutes the first non-numeric column that is not already used as
// a y-axis when the proposed x-axis is missing, unknown to the table,
// numeric, or collides with a y column. Unknown tables are left untouched.
// Mutates in.XAxis in place.
func ValidateAxes(in *domain.VizInput, lookup func(name string) ([]schema.Column, bool)) error {
	if !categoryCharts[in.ChartType] {
		return nil
	}
	cols, ok := lookup(in.DataframeName)
	if !ok {
		return nil
	}

	yCols := make(map[string]bool)
	for _, axis := range in.YAxes {
		for _, s := range axis.Series {
			yCols[s.Column] = true
		}
	}

	numeric := make(map[string]bool, len(cols))
	for _, c := range cols {
		numeric[c.Name] = c.Numeric
	}

	field := ""
	if in.XAxis != nil {
		field = in.XAxis.Field
	}
	if field != "" {
		isNumeric, known := numeric[field]
		if known && !isNumeric && !yCols[field] {
			return nil
		}
	}

	for _, c := range cols {
		if !c.Numeric && !yCols[c.Name] {
			in.XAxis = &domain.XAxis{Field: c.Name}
			return nil
		}
	}
	return ErrNoCategoricalAxis
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
