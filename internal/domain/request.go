package domain

// StartRequest is the client request that opens an agent session.
type StartRequest struct {
	Question    string `json:"question"`
	Why         string `json:"why"`
	What        string `json:"what"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// ClarificationItem is one clarifying question produced by the oracle.
// Immutable once emitted.
type ClarificationItem struct {
	Term     string                `json:"term"`
	Question string                `json:"question"`
	Options  []ClarificationOption `json:"options,omitempty"`
}

// ClarificationOption is a multiple-choice answer with a short teaching
// tooltip.
type ClarificationOption struct {
	Label   string `json:"label"`
	Tooltip string `json:"tooltip,omitempty"`
}

// RespondRequest is the out-of-band answer to a clarification term.
type RespondRequest struct {
	SessionID string `json:"session_id"`
	Term      string `json:"term"`
	Answer    string `json:"answer"`
}
