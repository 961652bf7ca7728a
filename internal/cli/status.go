package cli

import (
	"context"

	"resumescan/internal/common"
	"resumescan/internal/errors"
	"resumescan/internal/types"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [resume-id]",
	Short: "Show a resume job, or list an owner's jobs",
	Long: `Print the current status of a job from the configured store. A completed
job includes its analysis; a failed one its error code and message.

With --owner instead of an id, list that owner's jobs newest first.`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if statusConfig.OutputFormat == "" {
			statusConfig.OutputFormat = cfg.App.DefaultFormat
		}
		if len(args) == 0 && statusOwner == "" {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest, "either a resume id or --owner is required", nil)
		}
		return common.ValidateOutputFormat(statusConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runStatus,
}

var (
	statusConfig common.CommandConfig
	statusOwner  string
	statusLimit  int
)

func init() {
	statusCmd.Flags().StringVarP(&statusConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	statusCmd.Flags().StringVar(&statusConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	statusCmd.Flags().StringVar(&statusOwner, "owner", "", "List jobs of this owner")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 0, "Maximum number of jobs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	statusConfig.Stdout = cmd.OutOrStdout()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 1 {
		return common.RunCommand(ctx, logger, statusConfig, func(ctx context.Context) (types.JobView, error) {
			job, err := rt.store.Get(ctx, args[0])
			if err != nil {
				return types.JobView{}, err
			}
			return friendlyView(job), nil
		})
	}

	return common.RunCommand(ctx, logger, statusConfig, func(ctx context.Context) ([]types.JobView, error) {
		jobs, err := rt.store.ListByOwner(ctx, statusOwner, statusLimit)
		if err != nil {
			return nil, err
		}
		views := make([]types.JobView, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, friendlyView(job))
		}
		return views, nil
	})
}

// friendlyView replaces a stored failure reason with its end-user message.
func friendlyView(job *types.Job) types.JobView {
	v := job.View()
	if v.Error != nil {
		v.Error.Message = errors.FriendlyMessage(errors.NewInternalError(v.Error.Code, v.Error.Message, nil))
	}
	return v
}
