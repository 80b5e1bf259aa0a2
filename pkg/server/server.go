package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"lumen-hq/relay/pkg/agent"
	"lumen-hq/relay/pkg/cache"
	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/keypool"
	"lumen-hq/relay/pkg/mcp"
	"lumen-hq/relay/pkg/router"
	"lumen-hq/relay/pkg/server/middleware"
	"lumen-hq/relay/pkg/session"
	"lumen-hq/relay/pkg/telemetry/metrics"
	"lumen-hq/relay/pkg/tools"
)

// Options are the collaborators the server routes requests to. Config,
// Engine, and Router are required; everything else degrades gracefully
// when nil.
type Options struct {
	Config  *config.Config
	Engine  *engine.Engine
	Router  *router.Router
	Drivers map[string]agent.Driver

	// Cache is the unary response cache. Nil disables caching.
	Cache *cache.Cache

	// Session backs agent leases, task state, and cancellation.
	Session *session.Store

	// Pool feeds the /admin/keys status endpoint.
	Pool *keypool.Manager

	// MCP feeds the admin tool and server endpoints.
	MCP *mcp.Registry

	// Natives and ToolToggles feed the admin tool listing and toggles.
	Natives     []tools.Native
	ToolToggles *tools.Registry

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	router  *router.Router
	drivers map[string]agent.Driver

	cache       *cache.Cache
	session     *session.Store
	pool        *keypool.Manager
	mcp         *mcp.Registry
	natives     []tools.Native
	toolToggles *tools.Registry

	metrics *metrics.Metrics
	logger  *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New builds the server. It does not bind the listen address until Start.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		cfg:         opts.Config,
		engine:      opts.Engine,
		router:      opts.Router,
		drivers:     opts.Drivers,
		cache:       opts.Cache,
		session:     opts.Session,
		pool:        opts.Pool,
		mcp:         opts.MCP,
		natives:     opts.Natives,
		toolToggles: opts.ToolToggles,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// Start runs the HTTP server and blocks until the context is cancelled, a
// termination signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", s.cfg.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				shutdownErr = fmt.Errorf("server shutdown: %w", err)
			}
		}
		s.logger.Info("gateway stopped")
	})
	return shutdownErr
}

// Handler builds the routed handler with the full middleware chain. Split
// out from Start so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("POST /v1/audio/speech", s.handleSpeech)
	mux.HandleFunc("POST /v1/audio/transcriptions", s.handleTranscriptions)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handleCancelSession)

	mux.HandleFunc("GET /admin/keys", s.handleKeyStatus)
	mux.HandleFunc("GET /admin/mcp/servers", s.handleMCPServers)
	mux.HandleFunc("GET /admin/tools", s.handleListTools)
	mux.HandleFunc("POST /admin/tools/{name}", s.handleToggleTool)

	mux.HandleFunc("GET /health", s.handleHealth)

	metricsPath := s.cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if s.cfg.Metrics.Enabled == nil || *s.cfg.Metrics.Enabled {
		mux.Handle("GET "+metricsPath, s.metrics.Handler())
	}

	// Probes and scrapers stay reachable without the bearer token.
	authed := middleware.Auth(s.cfg.Auth.Enabled, s.cfg.Auth.Token)(mux)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == metricsPath {
			mux.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
	handler = middleware.CORS(s.cfg.Server.CORS)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.Recovery(handler)
	return handler
}
