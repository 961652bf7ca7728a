package common

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"resumescan/internal/errors"
	"resumescan/internal/types"
)

func TestValidateOutputFormat(t *testing.T) {
	configured := []string{"json", "text", "markdown"}

	tests := []struct {
		name             string
		format           string
		supportedFormats []string
		expectedError    string
	}{
		{name: "json", format: "json", supportedFormats: configured},
		{name: "markdown", format: "markdown", supportedFormats: configured},
		{
			name:             "unknown format",
			format:           "xml",
			supportedFormats: configured,
			expectedError:    "unsupported output format 'xml'. Supported formats: [json text markdown]",
		},
		{
			name:             "case sensitive",
			format:           "JSON",
			supportedFormats: configured,
			expectedError:    "unsupported output format 'JSON'. Supported formats: [json text markdown]",
		},
		{
			name:             "configured but not renderable",
			format:           "yaml",
			supportedFormats: []string{"json", "yaml"},
			expectedError:    "unsupported output format 'yaml'. Supported formats: [json]",
		},
		{
			name:             "registered but not configured",
			format:           "text",
			supportedFormats: []string{"json"},
			expectedError:    "unsupported output format 'text'. Supported formats: [json]",
		},
		{name: "nothing configured allows registered formats", format: "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supportedFormats)
			if tt.expectedError == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.expectedError {
				t.Errorf("Expected error '%s', got '%v'", tt.expectedError, err)
			}
		})
	}
}

func TestGetSupportedFormatsWithoutConfig(t *testing.T) {
	got := GetSupportedFormats(nil)
	if !slices.Equal(got, []string{"json", "markdown", "text"}) {
		t.Errorf("GetSupportedFormats(nil) = %v", got)
	}
}

func TestValidateInputPDF(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "resume.pdf")
	txt := filepath.Join(dir, "resume.txt")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(txt, []byte("plain"), 0600); err != nil {
		t.Fatal(err)
	}

	fp := NewFileProcessor(errors.NewNopLogger())

	abs, err := fp.ValidateInputPDF(pdf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Errorf("expected absolute path, got %s", abs)
	}

	if _, err := fp.ValidateInputPDF(txt); errors.CodeOf(err) != errors.ErrCodeInvalidFormat {
		t.Errorf("expected %s, got %v", errors.ErrCodeInvalidFormat, err)
	}
	if _, err := fp.ValidateInputPDF(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunCommandWritesOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "reports", "analysis.md")
	cfg := CommandConfig{OutputFile: out, OutputFormat: "markdown"}

	err := RunCommand(context.Background(), nil, cfg, func(context.Context) (types.AnalysisResult, error) {
		return types.AnalysisResult{OverallScore: 64}, nil
	})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(data), "**Overall Score:** 64/100") {
		t.Errorf("unexpected output:\n%s", data)
	}
}

func TestRunCommandPropagatesErrors(t *testing.T) {
	want := errors.NewIOError(errors.ErrCodeEmptyDocument, "empty", nil)
	err := RunCommand(context.Background(), nil, CommandConfig{OutputFormat: "json"}, func(context.Context) (types.JobView, error) {
		return types.JobView{}, want
	})
	if err != want {
		t.Errorf("RunCommand() error = %v, want %v", err, want)
	}
}

func TestRunCommandWritesToStdoutAndLogsFailures(t *testing.T) {
	var stdout, logs bytes.Buffer
	logger := errors.NewLoggerWithWriter(&logs, slog.LevelDebug)
	cfg := CommandConfig{OutputFormat: "text", Stdout: &stdout}

	err := RunCommand(context.Background(), logger, cfg, func(context.Context) ([]types.JobView, error) {
		return []types.JobView{
			{ID: "ok-1", Status: types.StatusPending},
			{ID: "bad-1", Status: types.StatusFailed, Error: &types.JobError{Code: errors.ErrCodeEmptyDocument, Message: "no text"}},
		}, nil
	})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "ok-1") || !strings.Contains(stdout.String(), "bad-1") {
		t.Errorf("unexpected stdout:\n%s", stdout.String())
	}
	if !strings.Contains(logs.String(), `"resume_id":"bad-1"`) || !strings.Contains(logs.String(), errors.ErrCodeEmptyDocument) {
		t.Errorf("failed job not logged:\n%s", logs.String())
	}
	if strings.Contains(logs.String(), "ok-1") {
		t.Errorf("pending job logged as failure:\n%s", logs.String())
	}
}
