package oracle

import (
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// EnvAgentMode is the environment variable name for mode selection.
	EnvAgentMode = "AGENT_MODE"
	// ModeMock indicates the scripted mock oracle should be used.
	ModeMock = "MOCK"
)

// Service is the full oracle surface: the planning contract plus streaming
// snippet edits.
type Service interface {
	Oracle
	Editor
}

// New creates an oracle Service based on the AGENT_MODE environment
// variable. AGENT_MODE=MOCK returns a Mock; anything else returns a real
// Client.
func New(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) (Service, error) {
	if os.Getenv(EnvAgentMode) == ModeMock {
		logger.Info("AGENT_MODE=MOCK detected, using mock oracle")
		return NewMock(), nil
	}
	return NewClient(baseURL, apiKey, model, timeout)
}
