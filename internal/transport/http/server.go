// Package http assembles the HTTP server of the notebook agent.
package http

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/datapad/notebook-agent/internal/config"
	"github.com/datapad/notebook-agent/internal/oracle"
	"github.com/datapad/notebook-agent/internal/session"
	"github.com/datapad/notebook-agent/internal/store"
	v1 "github.com/datapad/notebook-agent/internal/transport/http/v1"
)

// NewServer creates and configures the public-facing HTTP server.
func NewServer(cfg *config.Config, registry *session.Registry, journal store.Store, factory v1.ControllerFactory, editor oracle.Editor, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
	}))

	// Handlers
	handler := v1.NewHandler(registry, journal, factory, editor, logger)
	handler.RegisterRoutes(e)

	// The snippet edit endpoints sit behind basic auth. The session and
	// journal endpoints stay open so EventSource clients can connect
	// without credentials.
	edit := e.Group("/v1/stream")
	if cfg.BasicAuthUser != "" {
		edit.Use(middleware.BasicAuth(func(user, pass string, _ echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.BasicAuthUser)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.BasicAuthPass)) == 1
			return userOK && passOK, nil
		}))
	}
	handler.RegisterEditRoutes(edit)

	return e
}
