package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appErrors "resumescan/internal/errors"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one id in a batch.
type BatchResult struct {
	ID       string
	Err      error
	Duration time.Duration
}

// DispatcherStats is a snapshot of dispatcher activity.
type DispatcherStats struct {
	Concurrency int   `json:"concurrency"`
	InFlight    int   `json:"inFlight"`
	Started     int64 `json:"started"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	Rejected    int64 `json:"rejected"`
}

// Dispatcher runs jobs in the background with at most Concurrency running
// at once and never more than one run per resume id in this process.
type Dispatcher struct {
	runner      JobRunner
	concurrency int
	sem         chan struct{}
	logger      *appErrors.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
	wg       sync.WaitGroup

	// base is the parent of background runs; cancel stops them.
	base   context.Context
	cancel context.CancelFunc

	started   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewDispatcher creates a dispatcher around runner.
func NewDispatcher(runner JobRunner, concurrency int, logger *appErrors.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:      runner,
		concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
		logger:      logger,
		inFlight:    make(map[string]struct{}),
		base:        base,
		cancel:      cancel,
	}
}

// Dispatch starts a background run for id and returns immediately. It
// returns false when id is already running or the dispatcher is closed.
func (d *Dispatcher) Dispatch(id string) bool {
	if d.claim(id) != nil {
		return false
	}

	go func() {
		defer d.release(id)

		if err := d.execute(d.base, id); err != nil {
			d.logger.LogError(err, "Background analysis failed", "resume_id", id)
		}
	}()
	return true
}

// Run executes id synchronously under the same limits as Dispatch. A run
// already in flight yields JOB_CONFLICT.
func (d *Dispatcher) Run(ctx context.Context, id string) error {
	if err := d.claim(id); err != nil {
		return err
	}
	defer d.release(id)
	return d.execute(ctx, id)
}

// RunBatch runs every id in parallel and waits for all of them. Results are
// in input order. A repeated id only runs once; its later positions report
// JOB_CONFLICT.
func (d *Dispatcher) RunBatch(ctx context.Context, ids []string) []BatchResult {
	results := make([]BatchResult, len(ids))
	seen := make(map[string]struct{}, len(ids))

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, id := range ids {
		results[i].ID = id
		if _, dup := seen[id]; dup {
			results[i].Err = inFlightConflict(id)
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			start := time.Now()
			results[i].Err = d.Run(ctx, id)
			results[i].Duration = time.Since(start)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// IsRunning reports whether id has a run in flight.
func (d *Dispatcher) IsRunning(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[id]
	return ok
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	inFlight := len(d.inFlight)
	d.mu.Unlock()

	return DispatcherStats{
		Concurrency: d.concurrency,
		InFlight:    inFlight,
		Started:     d.started.Load(),
		Succeeded:   d.succeeded.Load(),
		Failed:      d.failed.Load(),
		Rejected:    d.rejected.Load(),
	}
}

// Wait blocks until every claimed run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting work and waits for running jobs. When ctx
// expires first the runs are cancelled and ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) claim(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.rejected.Add(1)
		return errDispatcherClosed
	}
	if _, busy := d.inFlight[id]; busy {
		d.rejected.Add(1)
		return inFlightConflict(id)
	}
	d.inFlight[id] = struct{}{}
	d.wg.Add(1)
	return nil
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
	d.wg.Done()
}

func (d *Dispatcher) execute(ctx context.Context, id string) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.sem }()

	d.started.Add(1)
	err := d.runner.Run(ctx, id)
	if err != nil {
		d.failed.Add(1)
	} else {
		d.succeeded.Add(1)
	}
	return err
}

var errDispatcherClosed = appErrors.NewInternalError(appErrors.ErrCodeInternal, "dispatcher is shut down", nil)

func inFlightConflict(id string) error {
	return appErrors.NewValidationError(appErrors.ErrCodeJobConflict,
		fmt.Sprintf("resume %s is already being analyzed", id), nil)
}
