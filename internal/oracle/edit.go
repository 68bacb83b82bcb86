package oracle

import "context"

// SQLEditRequest asks for an edit of a standalone SQL query. Field names
// mirror the JSON the edit endpoints accept.
type SQLEditRequest struct {
	Query        string `json:"query"`
	Instructions string `json:"instructions"`
	Dialect      string `json:"dialect"`
	TableInfo    string `json:"tableInfo,omitempty"`
}

// PythonEditRequest asks for an edit of a standalone Python snippet.
type PythonEditRequest struct {
	Source           string   `json:"source"`
	Instructions     string   `json:"instructions"`
	AllowedLibraries []string `json:"allowedLibraries,omitempty"`
	Variables        string   `json:"variables,omitempty"`
}

// Editor streams edited snippets back chunk by chunk. Unlike the planning
// contract the response is raw code, so chunks are forwarded as they arrive
// instead of being validated against a schema.
type Editor interface {
	EditSQL(ctx context.Context, req SQLEditRequest, emit func(chunk string) error) error
	EditPython(ctx context.Context, req PythonEditRequest, emit func(chunk string) error) error
}

var _ Editor = (*Client)(nil)

// EditSQL streams the edited query.
func (c *Client) EditSQL(ctx context.Context, req SQLEditRequest, emit func(chunk string) error) error {
	return c.streamComplete(ctx, sqlEditPrompt(req), emit)
}

// EditPython streams the edited snippet.
func (c *Client) EditPython(ctx context.Context, req PythonEditRequest, emit func(chunk string) error) error {
	return c.streamComplete(ctx, pythonEditPrompt(req), emit)
}
