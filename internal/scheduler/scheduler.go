// Package scheduler runs named periodic jobs. Jobs can also be triggered on
// demand, which is how tests drive them without waiting on wall time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swap-market/backend/internal/metrics"
	"go.uber.org/zap"
)

// Job is one periodic unit of work. Run returns how many rows it changed.
type Job struct {
	Name   string
	Every  time.Duration
	Offset time.Duration // delay before the first run
	Run    func(ctx context.Context) (int64, error)
}

var ErrUnknownJob = errors.New("unknown job")

type entry struct {
	job Job
	mu  sync.Mutex // one run of a job at a time in this process
}

type Runner struct {
	log     *zap.Logger
	mu      sync.Mutex
	jobs    map[string]*entry
	order   []string
	started bool
	active  atomic.Int32
	wg      sync.WaitGroup
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{log: log, jobs: make(map[string]*entry)}
}

func (r *Runner) Register(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("job needs a name and a run func")
	}
	if j.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", j.Name)
	}
	if j.Offset < 0 {
		return fmt.Errorf("job %s: offset must not be negative", j.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("job %s: runner already started", j.Name)
	}
	if _, dup := r.jobs[j.Name]; dup {
		return fmt.Errorf("job %s already registered", j.Name)
	}
	r.jobs[j.Name] = &entry{job: j}
	r.order = append(r.order, j.Name)
	return nil
}

// Jobs returns registered job names in registration order.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Start launches one loop per job and returns. Loops stop when ctx is done;
// Wait blocks until they have.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	entries := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.jobs[name])
	}
	r.mu.Unlock()

	for _, e := range entries {
		r.wg.Add(1)
		r.active.Add(1)
		go r.loop(ctx, e)
	}
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

// Running reports whether any job loop is alive.
func (r *Runner) Running() bool {
	return r.active.Load() > 0
}

// RunNow executes the named job once, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) (int64, error) {
	r.mu.Lock()
	e, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.execute(ctx, e)
}

func (r *Runner) loop(ctx context.Context, e *entry) {
	defer r.wg.Done()
	defer r.active.Add(-1)

	log := r.log.With(zap.String("job", e.job.Name))
	log.Info("job scheduled", zap.Duration("every", e.job.Every), zap.Duration("offset", e.job.Offset))

	if e.job.Offset > 0 {
		first := time.NewTimer(e.job.Offset)
		select {
		case <-ctx.Done():
			first.Stop()
			return
		case <-first.C:
		}
	}
	r.execute(ctx, e)

	ticker := time.NewTicker(e.job.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
			r.execute(ctx, e)
		}
	}
}

// execute runs the job once. A panic inside the job is recovered and
// reported as an error so the loop keeps going.
func (r *Runner) execute(ctx context.Context, e *entry) (n int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := e.job.Name
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", name, p)
		}
		if err != nil {
			metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
			r.log.Error("job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		metrics.JobRunsTotal.WithLabelValues(name, "ok").Inc()
		metrics.JobAffectedRows.WithLabelValues(name).Set(float64(n))
		metrics.JobLastSuccess.WithLabelValues(name).SetToCurrentTime()
		r.log.Info("job finished", zap.String("job", name), zap.Int64("count", n), zap.Duration("took", time.Since(start)))
	}()

	return e.job.Run(ctx)
}
