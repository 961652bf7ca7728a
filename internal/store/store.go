// Package store persists resume analysis jobs.
package store

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	appErrors "resumescan/internal/errors"
	"resumescan/internal/types"

	"github.com/go-playground/validator/v10"
)

// DefaultListLimit caps ListByOwner when the caller passes no limit.
const DefaultListLimit = 50

// Store is the accessor the pipeline relies on. Every method is atomic
// with respect to the others.
type Store interface {
	// Create inserts a PENDING job.
	Create(ctx context.Context, params CreateParams) (*types.Job, error)
	// Get returns JOB_NOT_FOUND for unknown ids.
	Get(ctx context.Context, id string) (*types.Job, error)
	// SetStatus writes PENDING, PROCESSING or FAILED unconditionally and
	// drops any payload. COMPLETED is only reachable through Complete.
	SetStatus(ctx context.Context, id string, status types.Status, reason string) error
	// Fail records a FAILED state with its error code.
	Fail(ctx context.Context, id, code, reason string) error
	// BeginProcessing moves PENDING or FAILED to PROCESSING and returns the
	// updated job. Any other current status yields JOB_CONFLICT.
	BeginProcessing(ctx context.Context, id string) (*types.Job, error)
	// Complete sets COMPLETED and the payload in one write. Only a
	// PROCESSING job can complete; any other status yields JOB_CONFLICT.
	Complete(ctx context.Context, id string, result types.AnalysisResult) error
	// ListByOwner returns the owner's jobs, newest first.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*types.Job, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close()
}

// CreateParams describes a new job
type CreateParams struct {
	OwnerID        string `json:"ownerId" validate:"required,max=128"`
	FileReference  string `json:"fileReference" validate:"required,max=2048"`
	FileName       string `json:"fileName,omitempty" validate:"max=255"`
	Title          string `json:"title,omitempty" validate:"max=200"`
	JobDescription string `json:"jobDescription,omitempty" validate:"max=20000"`
	CompanyName    string `json:"companyName,omitempty" validate:"max=200"`
}

var validate = validator.New()

// Normalize validates params and fills defaults. The title falls back to
// the file name without its extension.
func (p CreateParams) Normalize() (CreateParams, error) {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.FileReference = strings.TrimSpace(p.FileReference)
	p.Title = strings.TrimSpace(p.Title)
	p.CompanyName = strings.TrimSpace(p.CompanyName)

	if err := validate.Struct(p); err != nil {
		return p, invalidParams(err)
	}

	if p.Title == "" && p.FileName != "" {
		p.Title = strings.TrimSuffix(p.FileName, path.Ext(p.FileName))
	}
	if p.CompanyName == "" {
		p.CompanyName = types.DefaultCompanyName
	}
	return p, nil
}

func invalidParams(err error) error {
	appErr := appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, "invalid resume parameters", err)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s: failed '%s'", fe.Field(), fe.Tag()))
		}
		appErr.Violations = fields
	}
	return appErr
}

func notFound(id string) error {
	return appErrors.NewValidationError(appErrors.ErrCodeJobNotFound, "resume not found", nil).
		WithContext("resume_id", id)
}

func conflict(id string, current types.Status) error {
	return appErrors.NewValidationError(appErrors.ErrCodeJobConflict,
		fmt.Sprintf("resume is %s", current), nil).
		WithContext("resume_id", id).
		WithContext("current_status", string(current))
}

func invalidStatus(status types.Status) error {
	return appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest,
		fmt.Sprintf("status %q cannot be set directly", status), nil)
}

// stateFor builds the state written by SetStatus
func stateFor(status types.Status, reason string, now func() time.Time) (types.JobState, error) {
	switch status {
	case types.StatusPending:
		return types.Pending{}, nil
	case types.StatusProcessing:
		return types.Processing{StartedAt: now()}, nil
	case types.StatusFailed:
		return types.Failed{Reason: reason, FailedAt: now()}, nil
	default:
		return nil, invalidStatus(status)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
