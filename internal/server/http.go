// Package server exposes resume analysis jobs over HTTP.
package server

import (
	"context"
	"time"

	"resumescan/internal/ai"
	"resumescan/internal/config"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/observability"
	"resumescan/internal/pipeline"
	"resumescan/internal/store"
	"resumescan/internal/types"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	Code       string   `json:"code,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// ListResponse is the body of GET /v1/resumes.
type ListResponse struct {
	Resumes []types.JobView `json:"resumes"`
	Count   int             `json:"count"`
}

// ModelChecker reports model availability for /health.
type ModelChecker interface {
	GetModelInfo(ctx context.Context) *ai.ModelInfo
	GetCircuitBreakerStats() map[string]any
}

// Enqueuer hands a resume id to an out-of-process worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, resumeID string) error
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	TLSConfig config.TLSConfig

	// API Authentication
	APIKeys map[string]bool

	// Timeout configurations
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter
	ScanLimit   *config.ScanLimitConfig
	ScanLimiter *RateLimiter

	AllowedPrefixes []string
	HealthTimeout   time.Duration

	Store      store.Store
	Dispatcher *pipeline.Dispatcher
	Queue      Enqueuer
	Models     ModelChecker

	Observability *observability.ObservabilityManager
	Metrics       *observability.Metrics

	Logger *appErrors.Logger
}

// Deps are the collaborators a Server serves jobs from. Queue and Models
// are optional; without a queue, triggers run on the dispatcher.
type Deps struct {
	Store         store.Store
	Dispatcher    *pipeline.Dispatcher
	Queue         Enqueuer
	Models        ModelChecker
	Observability *observability.ObservabilityManager
}

// NewServer creates a Server from the application config
func NewServer(appCfg *config.Config, version string, deps Deps, logger *appErrors.Logger) *Server {
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}
	cfg := appCfg.Server

	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstCapacity, logger)
	}
	var scanLimiter *RateLimiter
	if cfg.ScanLimit.Enabled {
		scanLimiter = NewScanLimiter(cfg.ScanLimit.PerOwner, cfg.ScanLimit.Window, logger)
	}

	return &Server{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Version:         version,
		TLSConfig:       cfg.TLS,
		APIKeys:         apiKeyMap,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxRequestSize:  cfg.MaxRequestSize,
		RateLimit:       &cfg.RateLimit,
		RateLimiter:     rateLimiter,
		ScanLimit:       &cfg.ScanLimit,
		ScanLimiter:     scanLimiter,
		AllowedPrefixes: appCfg.Storage.AllowedPrefixes,
		HealthTimeout:   appCfg.AI.ModelCheckTimeout,
		Store:           deps.Store,
		Dispatcher:      deps.Dispatcher,
		Queue:           deps.Queue,
		Models:          deps.Models,
		Observability:   deps.Observability,
		Metrics:         deps.Observability.GetMetrics(),
		Logger:          logger,
	}
}
