package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rpaflow/fleetcore/pkg/auth"
	"github.com/rpaflow/fleetcore/pkg/metrics"
	"github.com/rpaflow/fleetcore/pkg/ratelimit"
	fleettls "github.com/rpaflow/fleetcore/pkg/tls"
	"github.com/rpaflow/fleetcore/pkg/tracing"
)

// ServerConfig holds the HTTP server configuration. TLS is enabled when
// both CertFile and KeyFile are set; CAFile additionally enforces mTLS.
type ServerConfig struct {
	ListenAddr   string
	RateLimitRPS float64
	RateBurst    int
	CertFile     string
	KeyFile      string
	CAFile       string
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   ":8080",
		RateLimitRPS: 50,
		RateBurst:    100,
	}
}

// Server is the orchestrator HTTP API with rate limiting, auth and
// tracing middleware, plus the Prometheus endpoint.
type Server struct {
	httpServer *http.Server
	config     ServerConfig
}

// NewServer wires the handler, middleware and metrics endpoint.
func NewServer(config ServerConfig, handler *FleetHandler, keys *auth.APIKeyManager, m *metrics.Metrics, tracer *tracing.Provider) *Server {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.RegisterRoutes(api)

	limiter := ratelimit.NewLimiter(config.RateLimitRPS, config.RateBurst)
	api.Use(mux.MiddlewareFunc(limiter.Middleware(ratelimit.IPKeyFunc)))
	api.Use(mux.MiddlewareFunc(keys.Middleware))
	if tracer != nil {
		api.Use(mux.MiddlewareFunc(tracing.HTTPMiddleware(tracer)))
	}

	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods("GET")
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         config.ListenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		config: config,
	}
}

// Start begins serving, over TLS when certificates are configured.
// Blocks until the server stops.
func (s *Server) Start() error {
	if s.config.CertFile != "" && s.config.KeyFile != "" {
		tlsConfig, err := fleettls.LoadServerConfig(s.config.CertFile, s.config.KeyFile, s.config.CAFile, s.config.CAFile != "")
		if err != nil {
			return fmt.Errorf("failed to load TLS config: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
		log.Printf("[API] Listening on %s (TLS)", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	}

	log.Printf("[API] Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
