package http_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datapad/notebook-agent/internal/config"
	"github.com/datapad/notebook-agent/internal/oracle"
	"github.com/datapad/notebook-agent/internal/sandbox"
	"github.com/datapad/notebook-agent/internal/schema"
	"github.com/datapad/notebook-agent/internal/session"
	transport "github.com/datapad/notebook-agent/internal/transport/http"
	"github.com/datapad/notebook-agent/tests/helpers"
)

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	journal := helpers.NewTestSQLiteStore(t)
	registry := session.NewRegistry(time.Hour)
	dataDir := t.TempDir()

	mock := oracle.NewMock()
	mock.EditChunks = []string{"SELECT 1"}

	factory := func(sessionID string) *session.Controller {
		return session.New(sessionID, session.Options{
			Oracle:  mock,
			Runner:  &sandbox.Fake{},
			Schema:  schema.NewProvider(dataDir),
			Journal: journal,
		})
	}
	return transport.NewServer(cfg, registry, journal, factory, mock, nil)
}

func TestBasicAuthScopedToEditRoutes(t *testing.T) {
	srv := newTestServer(t, &config.Config{
		FrontendURL:   "http://localhost:4000",
		BasicAuthUser: "analyst",
		BasicAuthPass: "secret",
	})

	do := func(method, path, body string, auth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth {
			req.SetBasicAuth("analyst", "secret")
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	// Session and health endpoints stay open.
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/health", "", false).Code)
	assert.Equal(t, http.StatusNotFound,
		do(http.MethodPost, "/v1/agent/session/respond", `{"session_id":"ses_none","term":"x","answer":"y"}`, false).Code)

	// Edit endpoints require credentials.
	editBody := `{"query":"SELECT 2","instructions":"fix"}`
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/v1/stream/sql/edit", editBody, false).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/v1/stream/sql/edit", editBody, true).Code)

	pyBody := `{"source":"df","instructions":"fix"}`
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/v1/stream/python/edit", pyBody, false).Code)
}

func TestBasicAuthDisabledWhenUnconfigured(t *testing.T) {
	srv := newTestServer(t, &config.Config{FrontendURL: "http://localhost:4000"})

	req := httptest.NewRequest(http.MethodPost, "/v1/stream/sql/edit",
		bytes.NewBufferString(`{"query":"SELECT 2","instructions":"fix"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
