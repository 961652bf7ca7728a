package cli

import (
	"resumescan/internal/pipeline"
	"resumescan/internal/queue"
	"resumescan/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for resume analysis jobs",
	Long: `Start an HTTP server that accepts resume analysis jobs and reports their status.

Available endpoints:
- POST /v1/resumes: Create a job (?run=async to start the analysis)
- GET /v1/resumes?ownerId=: List an owner's jobs
- GET /v1/resumes/{id}: Job status and analysis
- POST /v1/resumes/{id}/analyze: Trigger analysis of a PENDING or FAILED job
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

With the queue enabled, triggers are published to RabbitMQ for the worker
command. Otherwise they run in this process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, enables TLS)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if certFile, _ := cmd.Flags().GetString("cert-file"); certFile != "" {
		cfg.Server.TLS.Enabled = true
		cfg.Server.TLS.CertFile = certFile
	}
	if keyFile, _ := cmd.Flags().GetString("key-file"); keyFile != "" {
		cfg.Server.TLS.KeyFile = keyFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Queue.Enabled && cfg.Database.Driver != "postgres" {
		logger.Warn("Queue enabled with the in-memory store; workers will not see jobs created here")
	}

	// Queue-backed servers only enqueue, so they need no analyzer.
	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{
		pipeline: !cfg.Queue.Enabled,
		queue:    true,
	})
	if err != nil {
		return err
	}
	defer rt.close()

	deps := server.Deps{
		Store:         rt.store,
		Observability: rt.om,
	}
	if rt.analyzer != nil {
		deps.Models = rt.analyzer
	}
	if rt.conn != nil {
		producer, err := queue.NewProducer(rt.conn, cfg.Queue.Name)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		deps.Queue = producer
	} else {
		deps.Dispatcher = pipeline.NewDispatcher(rt.runner, cfg.Pipeline.Concurrency, logger)
	}

	return server.NewServer(cfg, Version, deps, logger).Start(ctx)
}
