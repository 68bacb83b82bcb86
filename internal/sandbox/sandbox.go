// Package sandbox runs untrusted snippets against a per-session persistent
// namespace. The namespace lives in a long-lived Python worker subprocess,
// so later blocks can reference variables created by earlier ones, the same
// way a continuously running notebook kernel behaves.
package sandbox

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/schema"
)

// DefaultOutputLimit caps captured execution output.
const DefaultOutputLimit = 5000

// truncationMarker is appended when output exceeds the limit.
const truncationMarker = "..."

// Runner executes snippets and reports on the tabular objects present in
// its namespace. One Runner per session; executions are serialized by the
// session controller.
type Runner interface {
	// Execute runs the snippet and captures its output. Runtime failures
	// are reported in the result, not as an error; the error return is for
	// sandbox-level failures (worker unavailable, context cancelled).
	Execute(ctx context.Context, code string) (domain.ExecutionResult, error)

	// Tables lists the tabular objects currently in the namespace.
	Tables(ctx context.Context) ([]schema.Table, error)

	// Close tears down the namespace.
	Close() error
}

// Truncate caps s at limit bytes, appending the truncation marker when
// anything was cut. The cut never splits a rune, so the result stays valid
// UTF-8 and safe to embed in event JSON.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

// Summarize produces the single context line recorded after an execution:
// the first line of the code plus a snippet of its outcome.
func Summarize(code string, result domain.ExecutionResult) string {
	head := domain.FirstLine(code)
	outcome := result.Output
	if result.Status == domain.StatusError {
		outcome = result.Error
	}
	outcome = strings.TrimSpace(outcome)
	outcome = Truncate(outcome, 120)
	if outcome == "" {
		return head
	}
	return head + " -> " + outcome
}
