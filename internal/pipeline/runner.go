package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"resumescan/internal/ai"
	"resumescan/internal/config"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/observability"
)

// RetryPolicy bounds how often and how fast a failed run is repeated.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64
	// Jitter is the fraction of each delay that is randomized, 0.1 = ±10%.
	Jitter float64
	// AttemptTimeout caps a single attempt. Zero means no cap.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy matches the pipeline defaults in config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Factor:         2,
		Jitter:         0.1,
		AttemptTimeout: 120 * time.Second,
	}
}

// RetryPolicyFromConfig converts the pipeline config section.
func RetryPolicyFromConfig(cfg config.PipelineConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		p.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		p.MaxBackoff = cfg.MaxBackoff
	}
	if cfg.BackoffFactor >= 1 {
		p.Factor = cfg.BackoffFactor
	}
	if cfg.AttemptTimeout > 0 {
		p.AttemptTimeout = cfg.AttemptTimeout
	}
	return p
}

// Backoff returns the delay before attempt n+1, where n counts from 1.
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= p.Factor
		if d >= float64(p.MaxBackoff) {
			d = float64(p.MaxBackoff)
			break
		}
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*randFloat() - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// randFloat returns a uniform value in [0, 1).
func randFloat() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0.5
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Retriable reports whether a failed run is worth repeating. Missing or
// busy jobs and unreadable documents never are.
func Retriable(err error) bool {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrCodeDownloadFailed, appErrors.ErrCodeSchemaViolation, appErrors.ErrCodeTimeout:
		return true
	case appErrors.ErrCodeModelError:
		return ai.IsRetryableError(err)
	default:
		return false
	}
}

// JobRunner runs one analysis attempt. *Orchestrator implements it.
type JobRunner interface {
	Run(ctx context.Context, id string) error
}

// Runner repeats retriable failures of a JobRunner under a RetryPolicy.
type Runner struct {
	job     JobRunner
	policy  RetryPolicy
	metrics *observability.Metrics
	logger  *appErrors.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRunner wraps job with policy.
func NewRunner(job JobRunner, policy RetryPolicy, metrics *observability.Metrics, logger *appErrors.Logger) *Runner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}
	return &Runner{
		job:     job,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Run calls the wrapped runner until it succeeds, fails permanently, the
// attempts are used up or ctx is done. The last error is returned as is.
func (r *Runner) Run(ctx context.Context, id string) error {
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err = r.attempt(ctx, id)
		if err == nil {
			r.metrics.RecordAttempt(ctx, attempt, "success")
			return nil
		}

		if !Retriable(err) || attempt == r.policy.MaxAttempts {
			r.metrics.RecordAttempt(ctx, attempt, "give_up")
			return err
		}
		r.metrics.RecordAttempt(ctx, attempt, "retry")

		delay := r.policy.Backoff(attempt)
		r.logger.Warn("Retrying resume analysis",
			"resume_id", id,
			"attempt", attempt,
			"error_code", appErrors.CodeOf(err),
			"delay_ms", delay.Milliseconds(),
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return err
}

func (r *Runner) attempt(ctx context.Context, id string) error {
	if r.policy.AttemptTimeout <= 0 {
		return r.job.Run(ctx, id)
	}
	ctx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
	defer cancel()
	return r.job.Run(ctx, id)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
