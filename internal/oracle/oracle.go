// Package oracle is the planning/clarification oracle contract: an external
// text-completion service invoked with a structured prompt and returning
// structured JSON. The core consumes it, it never implements it.
package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/datapad/notebook-agent/internal/domain"
)

// ErrMalformedOutput marks an oracle response that could not be parsed as
// the expected structure. It is fatal to the planning step.
var ErrMalformedOutput = errors.New("oracle returned malformed output")

// ClarifyRequest asks for clarification questions about the user's intent.
type ClarifyRequest struct {
	Question   string
	Why        string
	What       string
	DataSchema string
}

// ClarifyResponse is the ordered list of clarifying questions.
type ClarifyResponse struct {
	Clarifications []domain.ClarificationItem `json:"clarifications"`
}

// NextStepRequest asks for the single next notebook action.
type NextStepRequest struct {
	Question       string
	Why            string
	What           string
	Answers        map[string]string
	NotebookBlocks []map[string]any
	Context        string
	TableInfo      string
}

// NextStepEvent values the oracle may return.
const (
	StepActionEvent  = "action"
	StepInsightEvent = "insight"
	StepDoneEvent    = "done"
)

// NextStepResponse is the oracle's decision for one planning turn.
type NextStepResponse struct {
	Event     string           `json:"event"`
	Action    string           `json:"action,omitempty"`
	BlockType domain.BlockType `json:"blockType,omitempty"`
	Content   string           `json:"content,omitempty"`
	Input     json.RawMessage  `json:"input,omitempty"`
	Summary   string           `json:"summary,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
	SQL       string           `json:"sql,omitempty"`
	Chart     json.RawMessage  `json:"chart,omitempty"`
}

// RepairRequest asks for a replacement for a failing snippet. Used exactly
// once per failure.
type RepairRequest struct {
	Code  string
	Error string
}

// Oracle is the single well-typed contract the session controller plans
// against.
type Oracle interface {
	Clarify(ctx context.Context, req ClarifyRequest) (*ClarifyResponse, error)
	NextStep(ctx context.Context, req NextStepRequest) (*NextStepResponse, error)
	// Repair returns a replacement snippet, or "" when the oracle has no
	// fix to offer.
	Repair(ctx context.Context, req RepairRequest) (string, error)
}
