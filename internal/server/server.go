// Package server exposes the conversation engine over a loopback HTTP
// surface: JSON routes for conversations, settings and the catalog, and
// SSE streams for live exchanges. The desktop shell is its only intended
// client; it binds to localhost and carries no auth.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"nightjar/internal/exchange"
	"nightjar/internal/settings"
	"nightjar/internal/store"
)

// Server wires the store and the exchange orchestrator into HTTP routes.
type Server struct {
	echo  *echo.Echo
	store *store.Store
	orch  *exchange.Orchestrator

	mu          sync.Mutex
	settings    *settings.Settings
	settingsDir string
}

// New builds the server. settingsDir overrides where PUT /api/settings
// saves; empty means the default config directory.
func New(st *store.Store, orch *exchange.Orchestrator, s *settings.Settings, settingsDir string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger)

	if s == nil {
		s = &settings.Settings{}
	}
	srv := &Server{
		echo:        e,
		store:       st,
		orch:        orch,
		settings:    s,
		settingsDir: settingsDir,
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")
	api.GET("/catalog", s.getCatalog)
	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)

	api.GET("/conversations", s.listConversations)
	api.POST("/conversations", s.createConversation)
	api.GET("/conversations/search", s.searchConversations)
	api.GET("/conversations/:id", s.getConversation)
	api.PATCH("/conversations/:id", s.renameConversation)
	api.DELETE("/conversations/:id", s.deleteConversation)
	api.POST("/conversations/:id/messages", s.postMessage)
	api.PUT("/conversations/:id/messages/:index", s.editMessage)
	api.POST("/conversations/:id/regenerate", s.postRegenerate)
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// UpdateSettings swaps the settings snapshot handlers read. The serve
// loop calls it when the settings file changes on disk.
func (s *Server) UpdateSettings(next *settings.Settings) {
	if next == nil {
		return
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
}

func (s *Server) currentSettings() *settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		log.Debug().
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
		return err
	}
}

func jsonError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
