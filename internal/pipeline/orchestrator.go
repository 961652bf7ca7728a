// Package pipeline drives resume analysis jobs from PENDING to a terminal
// status and bounds how many run at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resumescan/internal/ai"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/extract"
	"resumescan/internal/fetch"
	"resumescan/internal/observability"
	"resumescan/internal/store"
	"resumescan/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// failWriteTimeout bounds the FAILED write, which runs detached from the
// caller's cancellation.
const failWriteTimeout = 10 * time.Second

// StatusEvent announces a job status change.
type StatusEvent struct {
	ResumeID  string       `json:"resumeId"`
	Status    types.Status `json:"status"`
	Message   string       `json:"message"`
	ErrorCode string       `json:"errorCode,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// StatusPublisher fans status events out to listeners. Publishing is best
// effort: a failed publish never fails a run.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event StatusEvent) error
}

// Deps are the collaborators of an Orchestrator. Publisher, Metrics and
// Tracer are optional.
type Deps struct {
	Store     store.Store
	Fetcher   fetch.Fetcher
	Extractor extract.Extractor
	Analyzer  ai.Analyzer
	Publisher StatusPublisher
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
	Logger    *appErrors.Logger
}

// Orchestrator runs a single analysis attempt for one job. It never
// retries; see Runner.
type Orchestrator struct {
	store     store.Store
	fetcher   fetch.Fetcher
	extractor extract.Extractor
	analyzer  ai.Analyzer
	publisher StatusPublisher
	metrics   *observability.Metrics
	tracer    trace.Tracer
	logger    *appErrors.Logger
	now       func() time.Time
}

// NewOrchestrator checks that the required collaborators are present.
func NewOrchestrator(d Deps) (*Orchestrator, error) {
	switch {
	case d.Store == nil:
		return nil, appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "orchestrator requires a store", nil)
	case d.Fetcher == nil:
		return nil, appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "orchestrator requires a fetcher", nil)
	case d.Extractor == nil:
		return nil, appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "orchestrator requires an extractor", nil)
	case d.Analyzer == nil:
		return nil, appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "orchestrator requires an analyzer", nil)
	}

	o := &Orchestrator{
		store:     d.Store,
		fetcher:   d.Fetcher,
		extractor: d.Extractor,
		analyzer:  d.Analyzer,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		tracer:    d.Tracer,
		logger:    d.Logger,
		now:       time.Now,
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("resumescan.pipeline")
	}
	if o.logger == nil {
		o.logger = appErrors.NewNopLogger()
	}
	return o, nil
}

// Run analyzes job id once.
//
// A COMPLETED job is left untouched and nil is returned. A job that is
// PROCESSING yields JOB_CONFLICT. Otherwise the job is claimed, its file is
// downloaded and analyzed, and the outcome is persisted. Every failure after
// the claim is written as FAILED and returned unchanged.
func (o *Orchestrator) Run(ctx context.Context, id string) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("resume.id", id)))
	defer span.End()

	logger := o.logger.With("resume_id", id)

	job, err := o.store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return err
	}

	switch job.Status() {
	case types.StatusCompleted:
		logger.Info("Resume already analyzed, nothing to do")
		span.SetAttributes(attribute.Bool("pipeline.noop", true))
		return nil
	case types.StatusProcessing:
		err := appErrors.NewValidationError(appErrors.ErrCodeJobConflict,
			fmt.Sprintf("resume %s is already being analyzed", id), nil)
		span.RecordError(err)
		return err
	}

	// Claim before any I/O so a concurrent trigger sees PROCESSING.
	job, err = o.store.BeginProcessing(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}

	start := o.now()
	logger.Info("Starting resume analysis", "file_reference", job.FileReference)
	o.publish(ctx, StatusEvent{ResumeID: id, Status: types.StatusProcessing, Message: "Analyzing resume"})

	if err := o.analyze(ctx, job); err != nil {
		if appErrors.HasCode(err, appErrors.ErrCodeJobConflict) {
			// The job left PROCESSING while this attempt ran; its state stands.
			logger.Warn("Analysis result discarded", "error", err.Error())
			span.RecordError(err)
			return err
		}
		o.fail(ctx, job, err, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErrors.CodeOf(err))
		return err
	}

	elapsed := o.now().Sub(start)
	o.metrics.RecordJob(ctx, string(types.StatusCompleted), "", elapsed)
	o.metrics.RecordBusinessMetric(ctx, observability.MetricResumeAnalyzed, true)
	o.publish(ctx, StatusEvent{ResumeID: id, Status: types.StatusCompleted, Message: "Analysis complete"})
	logger.Info("Analysis complete", "duration_ms", elapsed.Milliseconds())
	return nil
}

// analyze covers everything between the claim and the COMPLETED write.
func (o *Orchestrator) analyze(ctx context.Context, job *types.Job) error {
	data, err := o.download(ctx, job)
	if err != nil {
		return err
	}

	text, err := o.extract(ctx, data)
	if err != nil {
		return err
	}
	o.metrics.RecordContentSizes(ctx, len(data), len(text))

	result, err := o.callAnalyzer(ctx, job, text)
	if err != nil {
		return err
	}

	if err := o.store.Complete(ctx, job.ID, result); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) download(ctx context.Context, job *types.Job) ([]byte, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.download")
	defer span.End()

	data, err := o.fetcher.Fetch(ctx, job.FileReference)
	if err != nil {
		span.RecordError(err)
		// Fetchers report DOWNLOAD_FAILED themselves; anything else is
		// wrapped so the failure code stays meaningful.
		if appErrors.CodeOf(err) == "" {
			err = appErrors.NewNetworkError(appErrors.ErrCodeDownloadFailed,
				"Failed to download PDF", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("download.bytes", len(data)))
	return data, nil
}

func (o *Orchestrator) extract(ctx context.Context, data []byte) (string, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	text, err := o.extractor.Extract(ctx, data)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("extract.characters", len(text)))
	return text, nil
}

func (o *Orchestrator) callAnalyzer(ctx context.Context, job *types.Job, text string) (types.AnalysisResult, error) {
	req := ai.AnalysisRequest{
		ResumeText:     text,
		JobTitle:       job.Title,
		JobDescription: job.JobDescription,
	}

	var result types.AnalysisResult
	err := o.metrics.TrackAIOperationWithTokens(ctx, "analyze_resume", func(ctx context.Context) *observability.AIOperationResult {
		res, usage, err := o.analyzer.Analyze(ctx, req)
		result = res
		return &observability.AIOperationResult{Error: err, TokenUsage: toObservabilityUsage(usage)}
	})
	return result, err
}

// fail persists FAILED with the error's code and message. The write uses a
// context detached from ctx so a timed out attempt still records its outcome.
func (o *Orchestrator) fail(ctx context.Context, job *types.Job, cause error, start time.Time) {
	code, reason := failureOf(cause)

	o.logger.LogError(cause, "Analysis failed", "resume_id", job.ID)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	if err := o.store.Fail(writeCtx, job.ID, code, reason); err != nil {
		o.logger.LogError(err, "Failed to record analysis failure", "resume_id", job.ID, "failure_code", code)
	}

	o.metrics.RecordJob(writeCtx, string(types.StatusFailed), code, o.now().Sub(start))
	o.metrics.RecordBusinessMetric(writeCtx, observability.MetricResumeAnalyzed, false,
		attribute.String("code", code))
	o.publish(writeCtx, StatusEvent{
		ResumeID:  job.ID,
		Status:    types.StatusFailed,
		Message:   appErrors.FriendlyMessage(cause),
		ErrorCode: code,
	})
}

func (o *Orchestrator) publish(ctx context.Context, event StatusEvent) {
	if o.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = o.now().UTC()
	}
	if err := o.publisher.PublishStatus(ctx, event); err != nil {
		o.logger.Warn("Failed to publish status event",
			"resume_id", event.ResumeID, "status", event.Status, "error", err.Error())
	}
}

// failureOf returns the persisted code and reason for err.
func failureOf(err error) (code, reason string) {
	if appErr, ok := appErrors.As(err); ok {
		return appErr.Code, appErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		appErr := appErrors.NewContextError(err)
		return appErr.Code, appErr.Message
	}
	return appErrors.ErrCodeInternal, err.Error()
}

func toObservabilityUsage(u *ai.TokenUsage) *observability.TokenUsage {
	if u == nil {
		return nil
	}
	return &observability.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}
}
