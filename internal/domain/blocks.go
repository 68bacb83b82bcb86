package domain

import "strings"

// BlockType represents the kind of a notebook block.
type BlockType string

const (
	BlockTypePython BlockType = "python"
	BlockTypeSQL    BlockType = "sql"
	// BlockTypeVisualization is the structured chart block. The wire name
	// predates this service and is kept for front-end compatibility.
	BlockTypeVisualization BlockType = "visualizationV2"
)

// NotebookBlock is one unit of notebook content. Blocks are append-only:
// once recorded into session history they are never mutated, except that a
// visualization Input is normalized in place before its first emission.
type NotebookBlock struct {
	BlockID   string    `json:"blockId"`
	BlockType BlockType `json:"blockType"`
	Content   string    `json:"content,omitempty"`
	Input     *VizInput `json:"input,omitempty"`
}

// PlanSummary returns the compact representation of the block that is fed
// back to the planner: visualizations expose their data mapping so the
// planner can avoid proposing the same chart twice, everything else is
// reduced to its first line.
func (b *NotebookBlock) PlanSummary() map[string]any {
	if b.BlockType == BlockTypeVisualization && b.Input != nil {
		s := map[string]any{
			"type":      string(b.BlockType),
			"chartType": b.Input.ChartType,
			"dataframe": b.Input.DataframeName,
			"yAxes":     b.Input.YAxes,
		}
		if b.Input.XAxis != nil {
			s["xAxis"] = b.Input.XAxis
		}
		if b.Input.Title != "" {
			s["title"] = b.Input.Title
		}
		return s
	}
	return map[string]any{
		"type":      string(b.BlockType),
		"firstLine": FirstLine(b.Content),
	}
}

// FirstLine returns the first line of s, trimmed.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
