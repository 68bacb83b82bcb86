// Package policy gates sandbox executions through an OPA rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine evaluates the execution policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from the given rego module.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.exec_policy.decision"),
		rego.Module("exec_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input describes one snippet about to run.
type Input struct {
	BlockType string `json:"block_type"`
	Code      string `json:"code"`
}

// Evaluate returns the decision: "allow" or "block".
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy blocks snippets that reach for process or network
// primitives. The notebook workload is pandas-style analysis; nothing it
// legitimately does needs these.
const DefaultPolicy = `
package exec_policy

default decision = "allow"

banned := ["subprocess", "os.system", "socket.", "shutil.rmtree"]

decision = "block" {
	input.block_type == "python"
	some i
	contains(input.code, banned[i])
}
`
