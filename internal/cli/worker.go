package cli

import (
	"resumescan/internal/errors"
	"resumescan/internal/queue"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume analysis requests from RabbitMQ",
	Long: `Start a pool of workers reading {"resumeId": "..."} messages from the
analysis queue. Each message runs the full pipeline with retries; the outcome
is stored on the job and, when enabled, published to the status exchange.

Messages are acknowledged once their run finishes. A run interrupted by
shutdown is requeued.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntP("workers", "w", 0, "Number of concurrent workers (default from config)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	if !cfg.Queue.Enabled {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"the worker requires queue.enabled (RESUMESCAN_QUEUE_ENABLED=true)", nil)
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Queue.Workers = n
	}

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{pipeline: true, queue: true})
	if err != nil {
		return err
	}
	defer rt.close()

	logger.Info("Starting workers", "workers", cfg.Queue.Workers, "queue", cfg.Queue.Name)
	err = queue.NewConsumer(rt.conn, cfg.Queue, rt.runner, logger).Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Workers stopped")
	return nil
}
