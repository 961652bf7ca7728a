package cli

import (
	"context"
	"fmt"

	"resumescan/internal/common"
	"resumescan/internal/errors"
	"resumescan/internal/pipeline"
	"resumescan/internal/types"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <resume-id>...",
	Short: "Analyze stored jobs in this process",
	Long: `Run the analysis pipeline for one or more jobs already in the configured
store, without going through the queue. Jobs run in parallel up to
pipeline.concurrency; a failed job can be run again.

The final state of every job that exists is printed. The command exits with
an error when any run failed.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if runConfig.OutputFormat == "" {
			runConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(runConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runRun,
}

var runConfig common.CommandConfig

func init() {
	runCmd.Flags().StringVarP(&runConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	runCmd.Flags().StringVar(&runConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runConfig.Stdout = cmd.OutOrStdout()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{pipeline: true})
	if err != nil {
		return err
	}
	defer rt.close()

	dispatcher := pipeline.NewDispatcher(rt.runner, cfg.Pipeline.Concurrency, logger)
	results := dispatcher.RunBatch(ctx, args)

	var failed int
	err = common.RunCommand(ctx, logger, runConfig, func(ctx context.Context) ([]types.JobView, error) {
		views := make([]types.JobView, 0, len(results))
		for _, res := range results {
			if res.Err != nil {
				failed++
				logger.LogError(res.Err, "Run failed", "resume_id", res.ID)
			} else {
				logger.Info("Run finished", "resume_id", res.ID, "duration", res.Duration)
			}
			if errors.HasCode(res.Err, errors.ErrCodeJobNotFound) {
				continue
			}
			job, err := rt.store.Get(ctx, res.ID)
			if err != nil {
				return nil, err
			}
			views = append(views, friendlyView(job))
		}
		return views, nil
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return errors.NewInternalError(errors.ErrCodeInternal,
			fmt.Sprintf("%d of %d runs failed", failed, len(results)), nil)
	}
	return nil
}
