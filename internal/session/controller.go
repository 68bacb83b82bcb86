// Package session drives one end-to-end run of the notebook-building agent:
// the clarification handshake, the iterative plan/execute/observe loop and
// the terminal event.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/oracle"
	"github.com/datapad/notebook-agent/internal/policy"
	"github.com/datapad/notebook-agent/internal/sandbox"
	"github.com/datapad/notebook-agent/internal/schema"
	"github.com/datapad/notebook-agent/internal/store"
	"github.com/datapad/notebook-agent/internal/viz"
)

// DefaultMaxSteps bounds the planning loop against an oracle that never
// signals completion.
const DefaultMaxSteps = 12

// EmitFunc delivers one event to the stream consumer. Returning an error
// stops generation; side effects already committed are not rolled back.
type EmitFunc func(domain.Event) error

// Options configures a Controller.
type Options struct {
	Oracle oracle.Oracle
	Runner sandbox.Runner
	Schema *schema.Provider
	// Policy is optional; nil disables the execution guardrail.
	Policy *policy.Engine
	// Journal is optional; nil disables best-effort persistence.
	Journal store.Store
	Logger  *zap.Logger
	// MaxSteps caps loop iterations; non-positive means DefaultMaxSteps.
	MaxSteps int
	// AxisValidation toggles x-axis suitability checking for
	// category-requiring chart kinds.
	AxisValidation bool
}

// Controller is the finite-state driver of one session. It owns the
// session's sandbox namespace, context window, clarification gate and dedup
// cache, and composes them with the external oracle into the event stream.
type Controller struct {
	id             string
	oracle         oracle.Oracle
	runner         sandbox.Runner
	schemas        *schema.Provider
	policy         *policy.Engine
	journal        store.Store
	logger         *zap.Logger
	maxSteps       int
	axisValidation bool

	gate  *Gate
	acc   *Accumulator
	dedup *viz.Cache

	mu     sync.Mutex
	blocks []domain.NotebookBlock
}

// New creates a controller for one session.
func New(sessionID string, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Controller{
		id:             sessionID,
		oracle:         opts.Oracle,
		runner:         opts.Runner,
		schemas:        opts.Schema,
		policy:         opts.Policy,
		journal:        opts.Journal,
		logger:         logger.With(zap.String("session_id", sessionID)),
		maxSteps:       maxSteps,
		axisValidation: opts.AxisValidation,
		gate:           NewGate(),
		acc:            NewAccumulator(),
		dedup:          viz.NewCache(),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// SubmitClarification records a user answer and releases the waiting stream
// once all expected terms are answered. Safe to call from any goroutine.
func (c *Controller) SubmitClarification(term, answer string) {
	c.gate.Submit(term, answer)
}

// Close tears down the session's sandbox namespace.
func (c *Controller) Close() error {
	if c.runner != nil {
		return c.runner.Close()
	}
	return nil
}

// Run executes the session state machine, emitting every event in
// generation order. It returns when the oracle signals done, the step
// budget is exhausted, the consumer stops accepting events, or an oracle
// response is unusable.
func (c *Controller) Run(ctx context.Context, req domain.StartRequest, emit EmitFunc) error {
	c.journalSession(ctx, req)

	if err := c.emit(ctx, emit, domain.Event{
		Event:   domain.EventSessionStarted,
		Message: "Agent session started: " + req.Question,
	}); err != nil {
		return err
	}

	answers, err := c.clarify(ctx, req, emit)
	if err != nil {
		return err
	}

	for step := 0; step < c.maxSteps; step++ {
		next, err := c.oracle.NextStep(ctx, oracle.NextStepRequest{
			Question:       req.Question,
			Why:            req.Why,
			What:           req.What,
			Answers:        answers,
			NotebookBlocks: c.blockSummaries(),
			Context:        c.acc.Window(),
			TableInfo:      c.schemas.Summary(),
		})
		if err != nil {
			return fmt.Errorf("next-step oracle: %w", err)
		}

		switch next.Event {
		case oracle.StepDoneEvent:
			return c.emit(ctx, emit, domain.Event{
				Event:   domain.EventSessionCompleted,
				Message: "Agent session completed.",
			})
		case oracle.StepInsightEvent:
			c.acc.RecordSummary(next.Summary)
			if err := c.emit(ctx, emit, domain.Event{
				Event:     domain.EventInsight,
				Summary:   next.Summary,
				Reasoning: next.Reasoning,
				SQL:       next.SQL,
				Chart:     next.Chart,
			}); err != nil {
				return err
			}
		case oracle.StepActionEvent:
			if err := c.dispatchAction(ctx, emit, next); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown event %q", oracle.ErrMalformedOutput, next.Event)
		}
	}

	return c.emit(ctx, emit, domain.Event{
		Event:   domain.EventSessionCompleted,
		Reason:  domain.CompletionReasonMaxSteps,
		Message: "Agent session stopped after reaching the maximum number of steps.",
	})
}

// clarify runs the clarification sub-protocol and suspends until every
// emitted term is answered. No terms means no suspension.
func (c *Controller) clarify(ctx context.Context, req domain.StartRequest, emit EmitFunc) (map[string]string, error) {
	resp, err := c.oracle.Clarify(ctx, oracle.ClarifyRequest{
		Question:   req.Question,
		Why:        req.Why,
		What:       req.What,
		DataSchema: c.schemas.Summary(),
	})
	if err != nil {
		return nil, fmt.Errorf("clarification oracle: %w", err)
	}

	items := resp.Clarifications
	terms := make([]string, 0, len(items))
	for _, item := range items {
		terms = append(terms, item.Term)
	}
	c.gate.Expect(terms)

	if err := c.emit(ctx, emit, domain.Event{
		Event:          domain.EventClarification,
		Clarifications: items,
	}); err != nil {
		return nil, err
	}

	return c.gate.Await(ctx)
}

func (c *Controller) dispatchAction(ctx context.Context, emit EmitFunc, next *oracle.NextStepResponse) error {
	if next.Action != domain.ActionCreateBlock {
		return fmt.Errorf("%w: unknown action %q", oracle.ErrMalformedOutput, next.Action)
	}

	switch next.BlockType {
	case domain.BlockTypePython:
		return c.runCode(ctx, emit, newBlockID(), next.Content, true)
	case domain.BlockTypeVisualization:
		return c.emitVisualization(ctx, emit, newBlockID(), next)
	default:
		// Pass-through block: recorded verbatim, never executed.
		blockID := newBlockID()
		c.appendBlock(ctx, domain.NotebookBlock{
			BlockID:   blockID,
			BlockType: next.BlockType,
			Content:   next.Content,
		})
		c.acc.RecordSummary(snippet(next.Content, 120))
		return c.emit(ctx, emit, domain.Event{
			Event:     domain.EventAction,
			Action:    domain.ActionCreateBlock,
			BlockID:   blockID,
			BlockType: next.BlockType,
			Content:   next.Content,
		})
	}
}

// runCode executes one code block. A runtime failure triggers exactly one
// automatic repair attempt; the replacement runs once with repair disabled.
func (c *Controller) runCode(ctx context.Context, emit EmitFunc, blockID, code string, allowRepair bool) error {
	c.appendBlock(ctx, domain.NotebookBlock{
		BlockID:   blockID,
		BlockType: domain.BlockTypePython,
		Content:   code,
	})
	c.acc.RecordCell(code)

	if err := c.emit(ctx, emit, domain.Event{
		Event:     domain.EventAction,
		Action:    domain.ActionCreateBlock,
		BlockID:   blockID,
		BlockType: domain.BlockTypePython,
		Content:   code,
	}); err != nil {
		return err
	}

	result, repairable := c.execute(ctx, code)
	result.BlockID = blockID
	if err := c.emit(ctx, emit, domain.Event{
		Event:   domain.EventExecutionResult,
		BlockID: blockID,
		Status:  result.Status,
		Output:  result.Output,
		Error:   result.Error,
	}); err != nil {
		return err
	}
	c.acc.RecordSummary(sandbox.Summarize(code, result))
	c.refreshSchema(ctx)

	if result.Status == domain.StatusError && repairable && allowRepair {
		fixed, err := c.oracle.Repair(ctx, oracle.RepairRequest{Code: code, Error: result.Error})
		if err != nil {
			return fmt.Errorf("repair oracle: %w", err)
		}
		if fixed != "" && fixed != code {
			return c.runCode(ctx, emit, newBlockID(), fixed, false)
		}
	}
	return nil
}

// execute applies the policy guardrail and runs the snippet. Sandbox-level
// failures surface as error results: an execution problem is never fatal to
// the session. The second return reports whether a failure is worth a
// repair attempt; policy blocks and sandbox outages are not.
func (c *Controller) execute(ctx context.Context, code string) (domain.ExecutionResult, bool) {
	if c.policy != nil {
		decision, err := c.policy.Evaluate(ctx, policy.Input{
			BlockType: string(domain.BlockTypePython),
			Code:      code,
		})
		if err != nil {
			c.logger.Warn("session.policy_eval_failed", zap.Error(err))
		} else if decision == "block" {
			return domain.ExecutionResult{
				Status: domain.StatusError,
				Error:  "execution blocked by policy",
			}, false
		}
	}

	result, err := c.runner.Execute(ctx, code)
	if err != nil {
		return domain.ExecutionResult{
			Status: domain.StatusError,
			Error:  "sandbox unavailable: " + err.Error(),
		}, false
	}
	return result, true
}

func (c *Controller) emitVisualization(ctx context.Context, emit EmitFunc, blockID string, next *oracle.NextStepResponse) error {
	input, err := viz.NormalizeInput(next.Input)
	if err == nil && c.axisValidation {
		err = viz.ValidateAxes(input, c.schemas.Lookup)
	}
	if err != nil {
		// A chart that cannot be built becomes a narrative explanation
		// rather than a session failure.
		summary := fmt.Sprintf("I could not build the proposed chart: %v.", err)
		c.acc.RecordSummary(summary)
		return c.emit(ctx, emit, domain.Event{
			Event:   domain.EventInsight,
			Summary: summary,
		})
	}

	sig, err := viz.Signature(input)
	if err != nil {
		return fmt.Errorf("visualization signature: %w", err)
	}
	if c.dedup.Seen(sig) {
		// Duplicate proposal: dropped silently, the loop moves on.
		c.logger.Debug("session.duplicate_visualization",
			zap.String("dataframe", input.DataframeName),
			zap.String("chart_type", input.ChartType))
		return nil
	}
	c.dedup.Record(sig)

	c.appendBlock(ctx, domain.NotebookBlock{
		BlockID:   blockID,
		BlockType: domain.BlockTypeVisualization,
		Content:   next.Content,
		Input:     input,
	})
	return c.emit(ctx, emit, domain.Event{
		Event:     domain.EventAction,
		Action:    domain.ActionCreateBlock,
		BlockID:   blockID,
		BlockType: domain.BlockTypeVisualization,
		Content:   next.Content,
		Input:     input,
	})
}

// refreshSchema republishes the sandbox's tabular objects so the planner
// sees schemas the oracle never declared.
func (c *Controller) refreshSchema(ctx context.Context) {
	tables, err := c.runner.Tables(ctx)
	if err != nil {
		c.logger.Debug("session.schema_refresh_failed", zap.Error(err))
		return
	}
	c.schemas.SetDerived(tables)
}

func (c *Controller) appendBlock(ctx context.Context, block domain.NotebookBlock) {
	c.mu.Lock()
	c.blocks = append(c.blocks, block)
	c.mu.Unlock()

	if c.journal == nil {
		return
	}
	var input json.RawMessage
	if block.Input != nil {
		input, _ = json.Marshal(block.Input)
	}
	if err := c.journal.CreateBlock(ctx, &store.BlockRecord{
		BlockID:   block.BlockID,
		SessionID: c.id,
		BlockType: string(block.BlockType),
		Content:   block.Content,
		Input:     input,
		CreatedAt: time.Now(),
	}); err != nil {
		c.logger.Warn("session.journal_block_failed", zap.Error(err))
	}
}

func (c *Controller) blockSummaries() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.blocks))
	for i := range c.blocks {
		out[i] = c.blocks[i].PlanSummary()
	}
	return out
}

// emit journals the event and forwards it to the consumer.
func (c *Controller) emit(ctx context.Context, emit EmitFunc, ev domain.Event) error {
	c.journalEvent(ctx, ev)
	return emit(ev)
}

func (c *Controller) journalSession(ctx context.Context, req domain.StartRequest) {
	if c.journal == nil {
		return
	}
	if err := c.journal.CreateSession(ctx, &store.SessionRecord{
		SessionID: c.id,
		Question:  req.Question,
		Why:       req.Why,
		What:      req.What,
		CreatedAt: time.Now(),
	}); err != nil {
		c.logger.Warn("session.journal_session_failed", zap.Error(err))
	}
}

func (c *Controller) journalEvent(ctx context.Context, ev domain.Event) {
	if c.journal == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := c.journal.CreateEvent(ctx, &store.EventRecord{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: c.id,
		Ts:        time.Now().UnixMilli(),
		Type:      string(ev.Event),
		Payload:   payload,
	}); err != nil {
		c.logger.Warn("session.journal_event_failed", zap.Error(err))
	}
}

func newBlockID() string {
	return "blk_" + uuid.New().String()[:8]
}

func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
