// Package gateway exposes the assistant runtime over HTTP: REST endpoints
// for conversation management, a websocket chat endpoint streaming turn
// events, and health/metrics surfaces.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawane/loom/internal/observability"
	"github.com/sawane/loom/pkg/agent"
	"github.com/sawane/loom/pkg/convstore"
)

// AgentSource yields agents for chat requests. *agent.Registry satisfies it.
type AgentSource interface {
	Get(opts agent.Options) (*agent.Agent, error)
}

// Server is the gateway HTTP server.
type Server struct {
	addr        string
	store       convstore.Store
	agents      AgentSource
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
	broadcaster *Broadcaster
	watcher     *convstore.Watcher

	server         *http.Server
	inFlightReqs   sync.WaitGroup
	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// Config holds server configuration
type Config struct {
	Host   string
	Port   int
	Store  convstore.Store
	Agents AgentSource
	Logger zerolog.Logger
}

// NewServer creates a gateway server. When the store is the JSON backend a
// filesystem watcher is attached so external store changes are broadcast to
// event subscribers.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Agents == nil {
		return nil, fmt.Errorf("agent source is required")
	}

	s := &Server{
		addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		store:       cfg.Store,
		agents:      cfg.Agents,
		logger:      cfg.Logger,
		broadcaster: NewBroadcaster(cfg.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	if jsonStore, ok := cfg.Store.(*convstore.JSONStore); ok {
		watcher, err := convstore.NewWatcher(jsonStore, cfg.Logger, func() {
			s.broadcaster.Broadcast("conversations.changed", nil)
		})
		if err != nil {
			cfg.Logger.Warn().Err(err).Msg("Store watcher unavailable, refresh events disabled")
		} else {
			s.watcher = watcher
		}
	}

	return s, nil
}

// handler builds the route table.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("GET /conversations", s.track(s.handleListConversations))
	mux.HandleFunc("GET /conversations/{id}", s.track(s.handleGetConversation))
	mux.HandleFunc("DELETE /conversations/{id}", s.track(s.handleDeleteConversation))
	mux.HandleFunc("POST /chat", s.track(s.handleChat))
	mux.HandleFunc("GET /ws/chat", s.track(s.handleChatSocket))
	// Event subscriptions outlive requests; they are closed on shutdown
	// rather than waited for.
	mux.HandleFunc("GET /ws/events", s.handleEventsSocket)

	return mux
}

// track wraps a handler with shutdown rejection and in-flight accounting.
func (s *Server) track(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		h(w, r)
	}
}

// Start starts the server without blocking.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.handler(),
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop store watcher")
		}
	}

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.broadcaster.CloseAll()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}
