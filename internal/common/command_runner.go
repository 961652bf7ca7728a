package common

import (
	"context"
	"fmt"
	"io"
	"os"

	"resumescan/internal/errors"
	"resumescan/internal/formatters"
	"resumescan/internal/types"
)

// CommandConfig holds common configuration for commands
type CommandConfig struct {
	OutputFile   string
	OutputFormat string
	// Stdout receives the output when OutputFile is empty. Defaults to
	// os.Stdout.
	Stdout io.Writer
}

// OperationFunc produces the value a command prints.
type OperationFunc[Output any] func(context.Context) (Output, error)

// RunCommand runs operation and writes its result in the configured format
// to stdout or the output file. Failed jobs in the result are logged with
// their code.
func RunCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	operation OperationFunc[Output],
) error {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	fp := NewFileProcessor(logger)

	// Fail on a bad output path before doing any work.
	if err := fp.ValidateOutputFile(cmdConfig.OutputFile); err != nil {
		return err
	}

	result, err := operation(ctx)
	if err != nil {
		return err
	}

	output, err := formatters.GlobalRegistry.Format(result, cmdConfig.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", cmdConfig.OutputFormat), err)
	}

	for _, job := range failedJobs(result) {
		logger.Warn("Resume analysis failed",
			"resume_id", job.ID, "error_code", job.Error.Code, "message", job.Error.Message)
	}

	if cmdConfig.OutputFile == "" {
		stdout := cmdConfig.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		if _, err := io.WriteString(stdout, output); err != nil {
			return errors.NewIOError("FILE_WRITE_FAILED", "Cannot write output", err)
		}
		return nil
	}

	if err := fp.WriteFile(cmdConfig.OutputFile, output); err != nil {
		return err
	}
	logger.Info("Output written successfully",
		"file", cmdConfig.OutputFile, "format", cmdConfig.OutputFormat)
	return nil
}

func failedJobs(data any) []types.JobView {
	var jobs []types.JobView
	switch v := data.(type) {
	case types.JobView:
		jobs = []types.JobView{v}
	case []types.JobView:
		jobs = v
	}

	var failed []types.JobView
	for _, job := range jobs {
		if job.Status == types.StatusFailed && job.Error != nil {
			failed = append(failed, job)
		}
	}
	return failed
}
