package errors

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", stderrors.New("boom"), ""},
		{"app error", NewIOError(ErrCodeEmptyDocument, "empty", nil), ErrCodeEmptyDocument},
		{"wrapped", fmt.Errorf("attempt 1: %w", NewNetworkError(ErrCodeDownloadFailed, "404", nil)), ErrCodeDownloadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasCodeLooksThroughCauses(t *testing.T) {
	inner := NewAIError(ErrCodeModelError, "upstream", nil)
	outer := NewInternalError(ErrCodeStorageFailed, "save failed", inner)

	if !HasCode(outer, ErrCodeModelError) {
		t.Error("expected inner code to be found")
	}
	if !HasCode(outer, ErrCodeStorageFailed) {
		t.Error("expected outer code to be found")
	}
	if HasCode(outer, ErrCodeJobNotFound) {
		t.Error("unexpected code match")
	}
}

func TestNewSchemaViolation(t *testing.T) {
	err := NewSchemaViolation([]string{"overallScore: Must be less than or equal to 100"})

	if err.Code != ErrCodeSchemaViolation {
		t.Errorf("Code = %s", err.Code)
	}
	if err.Type != ErrorTypeAI {
		t.Errorf("Type = %s", err.Type)
	}
	if len(err.Violations) != 1 {
		t.Fatalf("Violations = %v", err.Violations)
	}
}

func TestFriendlyMessage(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{ErrCodeEmptyDocument, "This PDF contains no readable text. It might be a scanned image."},
		{ErrCodeModelError, "The AI is a bit overwhelmed right now. Please try again in a moment."},
		{ErrCodeSchemaViolation, "The AI generated a response we couldn't parse. Let's try one more time."},
		{ErrCodeTimeout, "The analysis took too long. Please try again."},
		{"SOMETHING_ELSE", "Something went wrong on our end. We're looking into it!"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := FriendlyMessage(NewInternalError(tt.code, "x", nil))
			if got != tt.want {
				t.Errorf("FriendlyMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewContextError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, ErrCodeTimeout},
		{fmt.Errorf("page 3: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{context.Canceled, ErrCodeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := NewContextError(tt.err)
			if got.Code != tt.want {
				t.Errorf("code = %s, want %s", got.Code, tt.want)
			}
			if !stderrors.Is(got, tt.err) {
				t.Errorf("cause lost: %v", got)
			}
		})
	}
}

func TestLogErrorIncludesCodeAndViolations(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelDebug)

	logger.LogError(NewSchemaViolation([]string{"ATS.score: required"}), "analysis failed", "job_id", "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record["error_code"] != ErrCodeSchemaViolation {
		t.Errorf("error_code = %v", record["error_code"])
	}
	if record["job_id"] != "abc" {
		t.Errorf("job_id = %v", record["job_id"])
	}
	if _, ok := record["violations"]; !ok {
		t.Error("violations missing from log record")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose"); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := New("debug"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
