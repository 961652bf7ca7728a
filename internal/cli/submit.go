package cli

import (
	"context"

	"resumescan/internal/common"
	"resumescan/internal/errors"
	"resumescan/internal/fetch"
	"resumescan/internal/queue"
	"resumescan/internal/store"
	"resumescan/internal/types"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a resume job in the configured store",
	Long: `Create a PENDING job for an uploaded resume. The file reference must start
with one of the allowed storage prefixes.

With --enqueue and the queue enabled, the job is also published to the
analysis queue for the worker command.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if submitConfig.OutputFormat == "" {
			submitConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(submitConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runSubmit,
}

var (
	submitConfig  common.CommandConfig
	submitParams  store.CreateParams
	submitEnqueue bool
)

func init() {
	submitCmd.Flags().StringVarP(&submitConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	submitCmd.Flags().StringVar(&submitConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	submitCmd.Flags().StringVar(&submitParams.OwnerID, "owner", "", "Owner of the resume (required)")
	submitCmd.Flags().StringVar(&submitParams.FileReference, "file-reference", "", "URL or s3:// reference of the uploaded PDF (required)")
	submitCmd.Flags().StringVar(&submitParams.FileName, "file-name", "", "Original file name")
	submitCmd.Flags().StringVar(&submitParams.Title, "title", "", "Job title")
	submitCmd.Flags().StringVar(&submitParams.JobDescription, "job-description", "", "Job description")
	submitCmd.Flags().StringVar(&submitParams.CompanyName, "company", "", "Company name")
	submitCmd.Flags().BoolVar(&submitEnqueue, "enqueue", false, "Publish the job to the analysis queue")
	_ = submitCmd.MarkFlagRequired("owner")
	_ = submitCmd.MarkFlagRequired("file-reference")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	submitConfig.Stdout = cmd.OutOrStdout()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	params, err := submitParams.Normalize()
	if err != nil {
		return err
	}
	if err := fetch.ValidateReference(params.FileReference, cfg.Storage.AllowedPrefixes); err != nil {
		return err
	}
	if submitEnqueue && !cfg.Queue.Enabled {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "--enqueue requires queue.enabled", nil)
	}

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{queue: submitEnqueue})
	if err != nil {
		return err
	}
	defer rt.close()

	return common.RunCommand(ctx, logger, submitConfig, func(ctx context.Context) (types.JobView, error) {
		job, err := rt.store.Create(ctx, params)
		if err != nil {
			return types.JobView{}, err
		}
		logger.Info("Resume job created", "resume_id", job.ID)

		if submitEnqueue {
			producer, err := queue.NewProducer(rt.conn, cfg.Queue.Name)
			if err != nil {
				return types.JobView{}, err
			}
			defer func() { _ = producer.Close() }()
			if err := producer.Enqueue(ctx, job.ID); err != nil {
				return types.JobView{}, err
			}
			logger.Info("Resume job enqueued", "resume_id", job.ID, "queue", cfg.Queue.Name)
		}
		return job.View(), nil
	})
}
