package observability

import (
	"context"
	"fmt"
	"time"

	"resumescan/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Business metric types accepted by RecordBusinessMetric.
const (
	MetricResumeAnalyzed = "resume_analyzed"
	MetricRateLimitHit   = "rate_limit_hit"
	MetricScanLimitHit   = "scan_limit_hit"
)

// Metrics holds all custom metrics for resumescan. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Job lifecycle
	JobsTotal       metric.Int64Counter
	JobDuration     metric.Float64Histogram
	JobAttempts     metric.Int64Counter
	ResumesAnalyzed metric.Int64Counter
	DownloadBytes   metric.Int64Histogram
	ExtractedChars  metric.Int64Histogram

	RateLimitHits metric.Int64Counter
	ScanLimitHits metric.Int64Counter

	settings config.CustomMetricsConfig
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, settings config.CustomMetricsConfig) (*Metrics, error) {
	m := &Metrics{settings: settings}

	for _, create := range []func(metric.Meter) error{
		m.createAIMetrics,
		m.createJobMetrics,
		m.createRateLimitMetrics,
	} {
		if err := create(meter); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func allCustomMetrics() config.CustomMetricsConfig {
	return config.CustomMetricsConfig{
		AIOperations: config.AIOperationsMetricsConfig{
			Enabled:         true,
			TrackDuration:   true,
			TrackTokenUsage: true,
		},
		BusinessMetrics: config.BusinessMetricsConfig{
			Enabled:           true,
			TrackContentSizes: true,
		},
		TrackRateLimits: true,
	}
}

func (m *Metrics) createAIMetrics(meter metric.Meter) error {
	var err error

	m.AIProcessingTime, err = meter.Float64Histogram(
		"resumescan_ai_processing_duration_seconds",
		metric.WithDescription("Time spent processing AI requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	m.AIRequestCount, err = meter.Int64Counter(
		"resumescan_ai_requests_total",
		metric.WithDescription("Total number of AI requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	m.AIErrorCount, err = meter.Int64Counter(
		"resumescan_ai_errors_total",
		metric.WithDescription("Total number of AI request errors"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	m.AITokenUsage, err = meter.Int64Histogram(
		"resumescan_ai_token_usage",
		metric.WithDescription("Token usage for AI requests (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	return nil
}

func (m *Metrics) createJobMetrics(meter metric.Meter) error {
	var err error

	m.JobsTotal, err = meter.Int64Counter(
		"resumescan_jobs_total",
		metric.WithDescription("Analysis runs by final status and error code"),
	)
	if err != nil {
		return fmt.Errorf("failed to create jobs total metric: %w", err)
	}

	m.JobDuration, err = meter.Float64Histogram(
		"resumescan_job_duration_seconds",
		metric.WithDescription("Wall time of a single analysis run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create job duration metric: %w", err)
	}

	m.JobAttempts, err = meter.Int64Counter(
		"resumescan_job_attempts_total",
		metric.WithDescription("Analysis attempts made by the retry runner"),
	)
	if err != nil {
		return fmt.Errorf("failed to create job attempts metric: %w", err)
	}

	m.ResumesAnalyzed, err = meter.Int64Counter(
		"resumescan_resumes_analyzed_total",
		metric.WithDescription("Total number of resumes analyzed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create resumes analyzed metric: %w", err)
	}

	m.DownloadBytes, err = meter.Int64Histogram(
		"resumescan_download_bytes",
		metric.WithDescription("Size of downloaded resume files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download bytes metric: %w", err)
	}

	m.ExtractedChars, err = meter.Int64Histogram(
		"resumescan_extracted_characters",
		metric.WithDescription("Characters of text extracted per resume"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extracted characters metric: %w", err)
	}

	return nil
}

func (m *Metrics) createRateLimitMetrics(meter metric.Meter) error {
	var err error

	m.RateLimitHits, err = meter.Int64Counter(
		"resumescan_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	m.ScanLimitHits, err = meter.Int64Counter(
		"resumescan_scan_limit_hits_total",
		metric.WithDescription("Scans rejected by the per-owner limit"),
	)
	if err != nil {
		return fmt.Errorf("failed to create scan limit hits metric: %w", err)
	}

	return nil
}

// TrackAIOperationWithTokens runs fn inside an "ai.<operation>" span and
// records duration, request, error and token metrics for it.
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult) error {
	if m == nil || m.AIProcessingTime == nil {
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	ctx, span := otel.Tracer("resumescan.ai").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	if m.settings.AIOperations.Enabled {
		m.recordAIMetrics(ctx, operation, err, duration, result, span)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (m *Metrics) recordAIMetrics(ctx context.Context, operation string, err error, duration float64, result *AIOperationResult, span oteltrace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}

	if m.settings.AIOperations.TrackDuration {
		m.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
	}
	m.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	m.recordTokenUsage(ctx, result, attrs, span)

	span.SetAttributes(attrs...)
}

func (m *Metrics) recordTokenUsage(ctx context.Context, result *AIOperationResult, attrs []attribute.KeyValue, span oteltrace.Span) {
	if result == nil || result.TokenUsage == nil {
		return
	}
	usage := result.TokenUsage

	if m.settings.AIOperations.TrackTokenUsage {
		for _, tt := range []struct {
			tokenType string
			value     int64
		}{
			{"input", usage.InputTokens},
			{"output", usage.OutputTokens},
			{"total", usage.TotalTokens},
		} {
			tokenAttrs := append(attrs[:len(attrs):len(attrs)], attribute.String("token_type", tt.tokenType))
			m.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(tokenAttrs...))
		}
	}

	// Traces always carry token counts.
	span.SetAttributes(
		attribute.Int64("ai.tokens.input", usage.InputTokens),
		attribute.Int64("ai.tokens.output", usage.OutputTokens),
		attribute.Int64("ai.tokens.total", usage.TotalTokens),
	)
}

// RecordJob records the outcome of one analysis run. code is empty for
// successful runs.
func (m *Metrics) RecordJob(ctx context.Context, status, code string, duration time.Duration) {
	if m == nil || m.JobsTotal == nil || !m.settings.BusinessMetrics.Enabled {
		return
	}
	m.JobsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("code", code),
	))
	m.JobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordAttempt counts a retry-runner attempt. outcome is "success",
// "retry" or "give_up".
func (m *Metrics) RecordAttempt(ctx context.Context, attempt int, outcome string) {
	if m == nil || m.JobAttempts == nil || !m.settings.BusinessMetrics.Enabled {
		return
	}
	m.JobAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("outcome", outcome),
	))
}

// RecordContentSizes records the downloaded byte count and extracted
// character count of a resume.
func (m *Metrics) RecordContentSizes(ctx context.Context, downloadBytes, extractedChars int) {
	if m == nil || m.DownloadBytes == nil || !m.settings.BusinessMetrics.TrackContentSizes {
		return
	}
	if downloadBytes > 0 {
		m.DownloadBytes.Record(ctx, int64(downloadBytes))
	}
	if extractedChars > 0 {
		m.ExtractedChars.Record(ctx, int64(extractedChars))
	}
}

// RecordBusinessMetric records business-specific metrics
func (m *Metrics) RecordBusinessMetric(ctx context.Context, metricType string, success bool, attributes ...attribute.KeyValue) {
	if m == nil {
		return
	}

	attrs := append([]attribute.KeyValue{
		attribute.Bool("success", success),
	}, attributes...)

	switch metricType {
	case MetricResumeAnalyzed:
		if m.settings.BusinessMetrics.Enabled && m.ResumesAnalyzed != nil {
			m.ResumesAnalyzed.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	case MetricRateLimitHit:
		if m.settings.TrackRateLimits && m.RateLimitHits != nil {
			m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	case MetricScanLimitHit:
		if m.settings.TrackRateLimits && m.ScanLimitHits != nil {
			m.ScanLimitHits.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
}
