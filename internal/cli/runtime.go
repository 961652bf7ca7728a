package cli

import (
	"context"
	"fmt"
	"time"

	"resumescan/internal/ai"
	"resumescan/internal/config"
	"resumescan/internal/errors"
	"resumescan/internal/extract"
	"resumescan/internal/fetch"
	"resumescan/internal/observability"
	"resumescan/internal/pipeline"
	"resumescan/internal/queue"
	"resumescan/internal/store"
)

// runtime holds the long-lived collaborators of a command. close releases
// them in reverse order of creation.
type runtime struct {
	cfg    *config.Config
	logger *errors.Logger

	om       *observability.ObservabilityManager
	store    store.Store
	analyzer *ai.GeminiAnalyzer
	conn     queue.Connection
	runner   *pipeline.Runner

	closers []func()
}

// runtimeOptions choose which parts of the pipeline a command needs.
type runtimeOptions struct {
	// memoryStore forces the in-memory store regardless of config.
	memoryStore bool
	// pipeline builds the analyzer, orchestrator and runner.
	pipeline bool
	// queue dials the broker when the queue is enabled.
	queue bool
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *errors.Logger, opts runtimeOptions) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	rt.om, err = observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	rt.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.om.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to shutdown observability")
		}
	})

	if opts.memoryStore {
		rt.store = store.NewMemory()
	} else if rt.store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	rt.onClose(rt.store.Close)

	if opts.queue && cfg.Queue.Enabled {
		rt.conn, err = queue.Dial(cfg.Queue.URL)
		if err != nil {
			return nil, err
		}
		rt.onClose(func() { _ = rt.conn.Close() })
		logger.Info("Connected to RabbitMQ", "queue", cfg.Queue.Name)
	}

	if opts.pipeline {
		if err := rt.buildPipeline(ctx); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// buildPipeline wires fetcher, extractor, analyzer and the status
// publisher into an orchestrator wrapped by the retrying runner.
func (rt *runtime) buildPipeline(ctx context.Context) error {
	cfg, logger := rt.cfg, rt.logger

	if err := cfg.RequireAPIKey(); err != nil {
		return errors.NewConfigError(errors.ErrCodeMissingAPIKey, err.Error(), nil)
	}

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return err
	}

	prompts := ai.NewPromptSet(cfg.AI.Prompts)
	rt.analyzer, err = ai.NewGeminiAnalyzer(ctx, cfg.AI, prompts, logger)
	if err != nil {
		return err
	}
	if cfg.AI.WatchPrompts {
		watcher := ai.NewPromptWatcher(cfg.AI.Prompts, prompts, time.Second, logger)
		if err := watcher.Start(); err != nil {
			logger.LogError(err, "Prompt hot reload disabled")
		} else {
			rt.onClose(func() { _ = watcher.Stop() })
		}
	}

	deps := pipeline.Deps{
		Store:     rt.store,
		Fetcher:   fetcher,
		Extractor: extract.NewPDFExtractor(logger),
		Analyzer:  rt.analyzer,
		Metrics:   rt.om.GetMetrics(),
		Tracer:    rt.om.Tracer("resumescan.pipeline"),
		Logger:    logger,
	}
	if rt.conn != nil && cfg.Queue.PublishUpdates {
		publisher, err := queue.NewStatusPublisher(rt.conn, cfg.Queue.Exchange)
		if err != nil {
			return err
		}
		rt.onClose(func() { _ = publisher.Close() })
		deps.Publisher = publisher
	}

	orchestrator, err := pipeline.NewOrchestrator(deps)
	if err != nil {
		return err
	}
	rt.runner = pipeline.NewRunner(orchestrator, pipeline.RetryPolicyFromConfig(cfg.Pipeline), rt.om.GetMetrics(), logger)
	return nil
}

// openStore connects to the configured job store.
func openStore(ctx context.Context, cfg *config.Config, logger *errors.Logger) (store.Store, error) {
	if cfg.Database.Driver != "postgres" {
		logger.Debug("Using in-memory job store")
		return store.NewMemory(), nil
	}

	pg, err := store.ConnectPostgres(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

// newFetcher routes http(s), file and, when configured, s3 references.
func newFetcher(ctx context.Context, cfg *config.Config) (fetch.Fetcher, error) {
	maxBytes := cfg.Storage.MaxDownloadSize
	router := fetch.NewRouter().
		Handle(fetch.NewHTTPFetcher(cfg.Storage.HTTPTimeout, maxBytes), "http", "https").
		Handle(fetch.NewFileFetcher(maxBytes), "file")

	if cfg.Storage.S3.Enabled {
		s3Fetcher, err := fetch.NewS3Fetcher(ctx, fetch.S3Config{
			Region:    cfg.Storage.S3.Region,
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			PathStyle: cfg.Storage.S3.PathStyle,
		}, maxBytes)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to configure S3 storage", err)
		}
		router.Handle(s3Fetcher, "s3")
	}
	return router, nil
}
