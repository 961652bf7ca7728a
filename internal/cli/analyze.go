package cli

import (
	"context"
	"path/filepath"

	"resumescan/internal/common"
	"resumescan/internal/errors"
	"resumescan/internal/fetch"
	"resumescan/internal/store"
	"resumescan/internal/types"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume.pdf]",
	Short: "Analyze a local PDF resume",
	Long: `Run the full analysis pipeline on a local PDF: extract its text, send it
to Gemini with the analysis schema, validate the response and print the result.

The job lives in memory for the duration of the command, so nothing is
persisted. Pass --title and --job-description to score the resume against
a specific role.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if analyzeConfig.OutputFormat == "" {
			analyzeConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(analyzeConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runAnalyze,
}

var (
	analyzeConfig  common.CommandConfig
	analyzeRequest struct {
		title          string
		jobDescription string
		company        string
	}
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	analyzeCmd.Flags().StringVar(&analyzeRequest.title, "title", "", "Job title to analyze against")
	analyzeCmd.Flags().StringVar(&analyzeRequest.jobDescription, "job-description", "", "Job description to analyze against")
	analyzeCmd.Flags().StringVar(&analyzeRequest.company, "company", "", "Company name")

	_ = analyzeCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	analyzeConfig.Stdout = cmd.OutOrStdout()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	path, err := common.NewFileProcessor(logger).ValidateInputPDF(args[0])
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{memoryStore: true, pipeline: true})
	if err != nil {
		return err
	}
	defer rt.close()

	err = common.RunCommand(ctx, logger, analyzeConfig, func(ctx context.Context) (types.AnalysisResult, error) {
		job, err := rt.store.Create(ctx, store.CreateParams{
			OwnerID:        "cli",
			FileReference:  fetch.FileReference(path),
			FileName:       filepath.Base(path),
			Title:          analyzeRequest.title,
			JobDescription: analyzeRequest.jobDescription,
			CompanyName:    analyzeRequest.company,
		})
		if err != nil {
			return types.AnalysisResult{}, err
		}

		logger.Info("Starting resume analysis",
			"resume_id", job.ID,
			"file", path,
			"output_format", analyzeConfig.OutputFormat)

		if err := rt.runner.Run(ctx, job.ID); err != nil {
			return types.AnalysisResult{}, err
		}

		job, err = rt.store.Get(ctx, job.ID)
		if err != nil {
			return types.AnalysisResult{}, err
		}
		result := job.Analysis()
		if result == nil {
			return types.AnalysisResult{}, errors.NewInternalError(errors.ErrCodeInternal, "analysis finished without a result", nil)
		}
		return *result, nil
	})
	if err != nil {
		return withFriendlyMessage(err)
	}

	logger.Info("Resume analysis completed successfully")
	return nil
}

// withFriendlyMessage prefixes pipeline errors with the end-user text for
// their code.
func withFriendlyMessage(err error) error {
	if _, ok := errors.As(err); !ok {
		return err
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidRequest, errors.ErrCodeInvalidFormat, errors.ErrCodeMissingAPIKey,
		errors.ErrCodeInvalidConfig, "INVALID_INPUT_FILE":
		return err
	}
	return &friendlyError{message: errors.FriendlyMessage(err), cause: err}
}

type friendlyError struct {
	message string
	cause   error
}

func (e *friendlyError) Error() string { return e.message + " (" + e.cause.Error() + ")" }
func (e *friendlyError) Unwrap() error { return e.cause }
