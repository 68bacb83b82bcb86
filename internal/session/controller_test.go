package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/oracle"
	"github.com/datapad/notebook-agent/internal/policy"
	"github.com/datapad/notebook-agent/internal/sandbox"
	"github.com/datapad/notebook-agent/internal/schema"
)

func newTestController(t *testing.T, mock *oracle.Mock, runner *sandbox.Fake, maxSteps int) *Controller {
	t.Helper()
	return New("ses_test", Options{
		Oracle:   mock,
		Runner:   runner,
		Schema:   schema.NewProvider(t.TempDir()),
		MaxSteps: maxSteps,
	})
}

func runSession(t *testing.T, ctrl *Controller, req domain.StartRequest) []domain.Event {
	t.Helper()
	var events []domain.Event
	err := ctrl.Run(context.Background(), req, func(ev domain.Event) error {
		events = append(events, ev)
		return nil
	})
	assert.NoError(t, err)
	return events
}

func eventTypes(events []domain.Event) []domain.EventType {
	types := make([]domain.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Event
	}
	return types
}

func pythonStep(code string) *oracle.NextStepResponse {
	return &oracle.NextStepResponse{
		Event:     oracle.StepActionEvent,
		Action:    domain.ActionCreateBlock,
		BlockType: domain.BlockTypePython,
		Content:   code,
	}
}

func vizStep(input string) *oracle.NextStepResponse {
	return &oracle.NextStepResponse{
		Event:     oracle.StepActionEvent,
		Action:    domain.ActionCreateBlock,
		BlockType: domain.BlockTypeVisualization,
		Input:     json.RawMessage(input),
	}
}

func TestRunImmediateDone(t *testing.T) {
	mock := oracle.NewMock()
	ctrl := newTestController(t, mock, &sandbox.Fake{}, 0)

	events := runSession(t, ctrl, domain.StartRequest{Question: "what drives churn?"})

	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventClarification,
		domain.EventSessionCompleted,
	}, eventTypes(events))
	assert.Contains(t, events[0].Message, "what drives churn?")
	assert.Empty(t, events[len(events)-1].Reason)
	assert.Equal(t, 1, mock.ClarifyCalls)
	assert.Equal(t, 1, mock.StepCalls)
}

func TestRunStepBudget(t *testing.T) {
	steps := make([]*oracle.NextStepResponse, 10)
	for i := range steps {
		steps[i] = &oracle.NextStepResponse{Event: oracle.StepInsightEvent, Summary: "an observation"}
	}
	mock := &oracle.Mock{Steps: steps}
	ctrl := newTestController(t, mock, &sandbox.Fake{}, 3)

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	// Exactly maxSteps planning turns, then a stopped-early completion.
	assert.Equal(t, 3, mock.StepCalls)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventSessionCompleted, last.Event)
	assert.Equal(t, domain.CompletionReasonMaxSteps, last.Reason)
}

func TestRunPythonBlock(t *testing.T) {
	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{
		pythonStep("df = pd.read_csv('sales.csv')\ndf.head()"),
	}}
	runner := &sandbox.Fake{
		ExecuteFunc: func(code string) domain.ExecutionResult {
			return domain.ExecutionResult{Status: domain.StatusOK, Output: "   region  revenue"}
		},
		TablesFunc: func() []schema.Table {
			return []schema.Table{{Name: "df", Columns: []schema.Column{{Name: "region"}, {Name: "revenue", Numeric: true}}}}
		},
	}
	ctrl := newTestController(t, mock, runner, 0)

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventClarification,
		domain.EventAction,
		domain.EventExecutionResult,
		domain.EventSessionCompleted,
	}, eventTypes(events))

	action := events[2]
	assert.Equal(t, domain.ActionCreateBlock, action.Action)
	assert.Equal(t, domain.BlockTypePython, action.BlockType)
	assert.NotEmpty(t, action.BlockID)

	result := events[3]
	assert.Equal(t, action.BlockID, result.BlockID)
	assert.Equal(t, domain.StatusOK, result.Status)
	assert.Equal(t, "   region  revenue", result.Output)

	// The derived dataframe is visible to the next planning turn.
	assert.Contains(t, ctrl.schemas.Summary(), `"df"`)
}

func TestRunRepairOnce(t *testing.T) {
	mock := &oracle.Mock{
		Steps:      []*oracle.NextStepResponse{pythonStep("df.group_by('region')")},
		RepairWith: "df.groupby('region')",
	}
	runner := &sandbox.Fake{
		ExecuteFunc: func(code string) domain.ExecutionResult {
			if code == "df.group_by('region')" {
				return domain.ExecutionResult{Status: domain.StatusError, Error: "AttributeError: 'DataFrame' object has no attribute 'group_by'"}
			}
			return domain.ExecutionResult{Status: domain.StatusOK, Output: "ok"}
		},
	}
	ctrl := newTestController(t, mock, runner, 0)

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	assert.Equal(t, 1, mock.RepairCalls)
	assert.Equal(t, []string{"df.group_by('region')", "df.groupby('region')"}, runner.Executed)

	// Both the failing block and its replacement were streamed, with
	// distinct block ids.
	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventClarification,
		domain.EventAction,
		domain.EventExecutionResult,
		domain.EventAction,
		domain.EventExecutionResult,
		domain.EventSessionCompleted,
	}, eventTypes(events))
	assert.NotEqual(t, events[2].BlockID, events[4].BlockID)
	assert.Equal(t, domain.StatusError, events[3].Status)
	assert.Equal(t, domain.StatusOK, events[5].Status)
}

func TestRunRepairFailsAgain(t *testing.T) {
	mock := &oracle.Mock{
		Steps:      []*oracle.NextStepResponse{pythonStep("broken")},
		RepairWith: "still broken",
	}
	runner := &sandbox.Fake{
		ExecuteFunc: func(code string) domain.ExecutionResult {
			return domain.ExecutionResult{Status: domain.StatusError, Error: "NameError"}
		},
	}
	ctrl := newTestController(t, mock, runner, 0)

	runSession(t, ctrl, domain.StartRequest{Question: "q"})

	// One repair attempt only; the failing replacement is not repaired.
	assert.Equal(t, 1, mock.RepairCalls)
	assert.Equal(t, []string{"broken", "still broken"}, runner.Executed)
}

func TestRunRepairDeclined(t *testing.T) {
	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{pythonStep("broken")}}
	runner := &sandbox.Fake{
		ExecuteFunc: func(code string) domain.ExecutionResult {
			return domain.ExecutionResult{Status: domain.StatusError, Error: "NameError"}
		},
	}
	ctrl := newTestController(t, mock, runner, 0)

	runSession(t, ctrl, domain.StartRequest{Question: "q"})

	assert.Equal(t, 1, mock.RepairCalls)
	assert.Equal(t, []string{"broken"}, runner.Executed)
}

func TestRunVisualizationDeduplicated(t *testing.T) {
	// Same data mapping twice, cosmetics differ; then the script ends.
	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{
		vizStep(`{"dataframeName":"sales","chartType":"bar","title":"First","xAxis":"region","yAxes":"revenue"}`),
		vizStep(`{"dataframeName":"sales","chartType":"bar","title":"Second","xAxis":"region","yAxes":[{"column":"revenue","color":"#0f0"}]}`),
	}}
	ctrl := newTestController(t, mock, &sandbox.Fake{}, 0)

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	// The duplicate disappears without any stream output.
	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventClarification,
		domain.EventAction,
		domain.EventSessionCompleted,
	}, eventTypes(events))

	action := events[2]
	assert.Equal(t, domain.BlockTypeVisualization, action.BlockType)
	if assert.NotNil(t, action.Input) {
		assert.Equal(t, "sales", action.Input.DataframeName)
		assert.NotEmpty(t, action.Input.YAxes[0].Series[0].ID)
	}
}

func TestRunVisualizationUnbuildable(t *testing.T) {
	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{
		vizStep(`{"chartType":"bar","yAxes":"revenue"}`),
	}}
	ctrl := newTestController(t, mock, &sandbox.Fake{}, 0)

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	// A chart that cannot be normalized becomes a narrative insight.
	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventClarification,
		domain.EventInsight,
		domain.EventSessionCompleted,
	}, eventTypes(events))
	assert.Contains(t, events[2].Summary, "could not build")
}

func TestRunClarificationGating(t *testing.T) {
	mock := &oracle.Mock{
		Clarifications: []domain.ClarificationItem{
			{Term: "churn", Question: "How do you define churn?"},
		},
		Steps: []*oracle.NextStepResponse{
			{Event: oracle.StepInsightEvent, Summary: "after the answer"},
		},
	}
	ctrl := newTestController(t, mock, &sandbox.Fake{}, 0)

	events := make(chan domain.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(context.Background(), domain.StartRequest{Question: "q"}, func(ev domain.Event) error {
			events <- ev
			return nil
		})
	}()

	// session_started, then the clarification request.
	ev := <-events
	assert.Equal(t, domain.EventSessionStarted, ev.Event)
	ev = <-events
	assert.Equal(t, domain.EventClarification, ev.Event)
	assert.Equal(t, "churn", ev.Clarifications[0].Term)

	// The loop must not advance until the answer lands.
	select {
	case ev := <-events:
		t.Fatalf("stream advanced past clarification: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	ctrl.SubmitClarification("churn", "no purchase in 90 days")

	ev = <-events
	assert.Equal(t, domain.EventInsight, ev.Event)
	ev = <-events
	assert.Equal(t, domain.EventSessionCompleted, ev.Event)
	assert.NoError(t, <-done)
}

func TestRunPolicyBlocked(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	assert.NoError(t, err)

	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{
		pythonStep("import subprocess\nsubprocess.run(['ls'])"),
	}}
	runner := &sandbox.Fake{}
	ctrl := New("ses_test", Options{
		Oracle:   mock,
		Runner:   runner,
		Schema:   schema.NewProvider(t.TempDir()),
		Policy:   engine,
		MaxSteps: 0,
	})

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	// The snippet never reaches the sandbox and no repair is attempted.
	assert.Empty(t, runner.Executed)
	assert.Equal(t, 0, mock.RepairCalls)

	var result *domain.Event
	for i := range events {
		if events[i].Event == domain.EventExecutionResult {
			result = &events[i]
		}
	}
	if assert.NotNil(t, result) {
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Contains(t, result.Error, "blocked by policy")
	}
}

func TestRunPassThroughBlock(t *testing.T) {
	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{
		{
			Event:     oracle.StepActionEvent,
			Action:    domain.ActionCreateBlock,
			BlockType: domain.BlockTypeSQL,
			Content:   "SELECT region, SUM(revenue) FROM sales GROUP BY region",
		},
	}}
	runner := &sandbox.Fake{}
	ctrl := newTestController(t, mock, runner, 0)

	events := runSession(t, ctrl, domain.StartRequest{Question: "q"})

	// Recorded and streamed, never executed.
	assert.Empty(t, runner.Executed)
	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventClarification,
		domain.EventAction,
		domain.EventSessionCompleted,
	}, eventTypes(events))
	assert.Equal(t, domain.BlockTypeSQL, events[2].BlockType)
}

func TestRunUnknownActionFatal(t *testing.T) {
	mock := &oracle.Mock{Steps: []*oracle.NextStepResponse{
		{Event: oracle.StepActionEvent, Action: "delete_block"},
	}}
	ctrl := newTestController(t, mock, &sandbox.Fake{}, 0)

	err := ctrl.Run(context.Background(), domain.StartRequest{Question: "q"}, func(domain.Event) error {
		return nil
	})
	assert.ErrorIs(t, err, oracle.ErrMalformedOutput)
}

func TestRegistryEvictionClosesController(t *testing.T) {
	runner := &sandbox.Fake{}
	ctrl := New("ses_evict", Options{Runner: runner, Schema: schema.NewProvider(t.TempDir())})

	r := NewRegistry(time.Hour)
	r.Put(ctrl)

	got, ok := r.Get("ses_evict")
	assert.True(t, ok)
	assert.Same(t, ctrl, got)

	r.Delete("ses_evict")
	_, ok = r.Get("ses_evict")
	assert.False(t, ok)
	assert.True(t, runner.Closed())
}

func TestRegistryAccessExtendsTTL(t *testing.T) {
	ctrl := New("ses_ttl", Options{Runner: &sandbox.Fake{}, Schema: schema.NewProvider(t.TempDir())})

	r := NewRegistry(120 * time.Millisecond)
	r.Put(ctrl)

	// Keep the session active past its original TTL.
	for i := 0; i < 4; i++ {
		time.Sleep(60 * time.Millisecond)
		r.Touch("ses_ttl")
	}

	_, ok := r.Get("ses_ttl")
	assert.True(t, ok, "active session must not expire while being touched")

	// An idle session still expires.
	time.Sleep(200 * time.Millisecond)
	_, ok = r.Get("ses_ttl")
	assert.False(t, ok, "idle session must expire after the TTL")
}
