package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// completionServer returns an httptest server that answers every chat
// completion with the given content.
func completionServer(t *testing.T, content string) (*httptest.Server, *[]chatRequest) {
	t.Helper()
	var seen []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, "test-key", "test-model", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClientClarify(t *testing.T) {
	content := `{"clarifications":[{"term":"churn","question":"How do you define churn?","options":[{"label":"90 days","tooltip":"No purchase in 90 days"}]}]}`
	srv, seen := completionServer(t, content)
	c := newTestClient(t, srv.URL)

	resp, err := c.Clarify(context.Background(), ClarifyRequest{Question: "what drives churn?"})
	assert.NoError(t, err)
	assert.Len(t, resp.Clarifications, 1)
	assert.Equal(t, "churn", resp.Clarifications[0].Term)
	assert.Equal(t, "90 days", resp.Clarifications[0].Options[0].Label)

	// The request carried the model, the json response format and the
	// question inside the prompt.
	assert.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, "json_object", req.ResponseFormat["type"])
	assert.Contains(t, req.Messages[0].Content, "what drives churn?")
}

func TestClientNextStep(t *testing.T) {
	content := `{"event":"action","action":"create_block","blockType":"python","content":"df.head()"}`
	srv, _ := completionServer(t, content)
	c := newTestClient(t, srv.URL)

	resp, err := c.NextStep(context.Background(), NextStepRequest{Question: "q"})
	assert.NoError(t, err)
	assert.Equal(t, StepActionEvent, resp.Event)
	assert.Equal(t, "df.head()", resp.Content)
}

func TestClientNextStepFencedOutput(t *testing.T) {
	content := "```json\n{\"event\":\"done\"}\n```"
	srv, _ := completionServer(t, content)
	c := newTestClient(t, srv.URL)

	resp, err := c.NextStep(context.Background(), NextStepRequest{Question: "q"})
	assert.NoError(t, err)
	assert.Equal(t, StepDoneEvent, resp.Event)
}

func TestClientMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"not json":         "the analysis is complete",
		"wrong event":      `{"event":"retire"}`,
		"missing event":    `{"action":"create_block"}`,
		"non-object input": `{"event":"action","input":"not an object"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := completionServer(t, content)
			c := newTestClient(t, srv.URL)

			_, err := c.NextStep(context.Background(), NextStepRequest{Question: "q"})
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestClientRepair(t *testing.T) {
	srv, seen := completionServer(t, `{"code":"df.groupby('region')"}`)
	c := newTestClient(t, srv.URL)

	fixed, err := c.Repair(context.Background(), RepairRequest{
		Code:  "df.group_by('region')",
		Error: "AttributeError",
	})
	assert.NoError(t, err)
	assert.Equal(t, "df.groupby('region')", fixed)
	assert.Contains(t, (*seen)[0].Messages[0].Content, "AttributeError")
}

func TestClientRepairNoFix(t *testing.T) {
	srv, _ := completionServer(t, `{"code":""}`)
	c := newTestClient(t, srv.URL)

	fixed, err := c.Repair(context.Background(), RepairRequest{Code: "broken", Error: "boom"})
	assert.NoError(t, err)
	assert.Equal(t, "", fixed)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	_, err := c.NextStep(context.Background(), NextStepRequest{Question: "q"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	_, err := c.NextStep(context.Background(), NextStepRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestClientBearerAuth(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"event\":\"done\"}"}}]}`)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	_, err := c.NextStep(context.Background(), NextStepRequest{Question: "q"})
	assert.NoError(t, err)
	assert.Equal(t, "Bearer test-key", auth)
}
