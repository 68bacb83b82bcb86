// Package domain defines the core types of the notebook-building agent:
// the session event stream, notebook blocks, and visualization specs.
package domain

import "encoding/json"

// EventType represents the type of a session stream event.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventClarification    EventType = "clarification"
	EventAction           EventType = "action"
	EventExecutionResult  EventType = "execution_result"
	EventInsight          EventType = "insight"
	EventSessionCompleted EventType = "session_completed"
)

// ActionCreateBlock is the only action the planner may request.
const ActionCreateBlock = "create_block"

// CompletionReasonMaxSteps marks a session that was stopped because the
// planning loop exhausted its step budget without a done signal.
const CompletionReasonMaxSteps = "max_steps"

// Event is one element of the session stream. It is a flat envelope: only
// the fields relevant to the given EventType are populated, everything else
// is omitted from the wire form.
type Event struct {
	Event     EventType `json:"event"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`

	// clarification
	Clarifications []ClarificationItem `json:"clarifications,omitempty"`

	// action
	Action    string    `json:"action,omitempty"`
	BlockID   string    `json:"blockId,omitempty"`
	BlockType BlockType `json:"blockType,omitempty"`
	Content   string    `json:"content,omitempty"`
	Input     *VizInput `json:"input,omitempty"`

	// execution_result
	Status string `json:"status,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	// insight
	Summary   string          `json:"summary,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	SQL       string          `json:"sql,omitempty"`
	Chart     json.RawMessage `json:"chart,omitempty"`

	// session_completed
	Reason string `json:"reason,omitempty"`
}

// ExecutionResult is the outcome of running one code block in the sandbox.
type ExecutionResult struct {
	Status  string `json:"status"` // "ok" or "error"
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	BlockID string `json:"blockId,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)
