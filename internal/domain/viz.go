package domain

// VizInput is the canonical structured input of a visualization block.
type VizInput struct {
	DataframeName string `json:"dataframeName"`
	ChartType     string `json:"chartType"`
	Title         string `json:"title,omitempty"`
	XAxis         *XAxis `json:"xAxis,omitempty"`
	YAxes         []Axis `json:"yAxes"`
}

// XAxis describes the horizontal axis of a chart.
type XAxis struct {
	Field string `json:"field,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Axis is one y-axis carrying an ordered list of series.
//
// Axis and series ids are deterministic functions of semantic content
// (column, aggregate function, group-by). Two planning turns that propose
// the same logical chart therefore normalize to byte-identical specs, which
// is what makes deduplication possible.
type Axis struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Series []Series `json:"series"`
}

// Series is one data series on an axis.
type Series struct {
	ID                string   `json:"id"`
	Column            string   `json:"column"`
	AggregateFunction string   `json:"aggregateFunction"`
	GroupBy           *string  `json:"groupBy"`
	ChartType         string   `json:"chartType,omitempty"`
	Name              string   `json:"name,omitempty"`
	Color             string   `json:"color,omitempty"`
	Groups            []string `json:"groups,omitempty"`
	DateFormat        string   `json:"dateFormat,omitempty"`
	NumberFormat      string   `json:"numberFormat,omitempty"`
}
