package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ah-its-andy/docconv/internal/domain"
)

// progressBuffer is how many progress events may queue before newer ones are
// coalesced.
const progressBuffer = 64

// ErrPoolStopped is returned when work is submitted to a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Runner executes jobs for a single worker. A worker never calls Run
// concurrently on its runner.
type Runner interface {
	Run(ctx context.Context, job domain.Job) domain.Result
	Close() error
}

// RunnerFactory builds the runner owned by worker id.
type RunnerFactory func(id int) (Runner, error)

// DefaultWorkers is min(NumCPU, 4).
func DefaultWorkers() int {
	return min(runtime.NumCPU(), 4)
}

// Progress is reported once per finished job.
type Progress struct {
	BatchID string
	Done    int
	Total   int
	Result  domain.Result
}

// SubmitOptions configures one batch.
type SubmitOptions struct {
	// ID overrides the generated batch id.
	ID string
	// OnProgress is called from a dedicated goroutine, never from a worker.
	OnProgress func(Progress)
}

// Pool is a fixed set of workers, each running one job at a time on its own
// runner.
type Pool struct {
	size    int
	factory RunnerFactory
	log     zerolog.Logger

	tasks chan *task
	quit  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	runners []Runner
}

type task struct {
	batch *Batch
	index int
	job   domain.Job
}

// NewPool creates a pool of size workers. size <= 0 means DefaultWorkers.
func NewPool(size int, factory RunnerFactory, logger zerolog.Logger) *Pool {
	if size <= 0 {
		size = DefaultWorkers()
	}
	return &Pool{
		size:    size,
		factory: factory,
		log:     logger.With().Str("component", "pool").Logger(),
		tasks:   make(chan *task),
		quit:    make(chan struct{}),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start builds every runner and starts the workers. It is a no-op when the
// pool is already running.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return nil
	}
	runners := make([]Runner, 0, p.size)
	for i := 0; i < p.size; i++ {
		r, err := p.factory(i)
		if err != nil {
			for _, built := range runners {
				built.Close()
			}
			return fmt.Errorf("build runner %d: %w", i, err)
		}
		runners = append(runners, r)
	}
	p.runners = runners
	for i, r := range runners {
		p.wg.Add(1)
		go p.worker(i, r)
	}
	p.started = true
	p.log.Info().Int("workers", p.size).Msg("started conversion workers")
	return nil
}

// Stop stops the workers after their current job and closes the runners.
// Jobs not yet started are reported as cancelled.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
	for i, r := range p.runners {
		if err := r.Close(); err != nil {
			p.log.Warn().Err(err).Int("worker", i).Msg("close runner")
		}
	}
	p.log.Info().Msg("all workers stopped")
}

// Submit queues jobs as one batch and returns immediately. The pool is
// started on first use. Jobs of one batch never share an output path.
func (p *Pool) Submit(ctx context.Context, jobs []domain.Job, opts SubmitOptions) *Batch {
	jobs = domain.ReserveOutputs(jobs)
	b := newBatch(ctx, jobs, opts)
	if len(jobs) == 0 {
		b.closeProgress()
		return b
	}
	if err := p.Start(); err != nil {
		b.cancelFrom(0, err)
		return b
	}
	p.log.Debug().Str("batch", b.ID).Int("jobs", len(jobs)).Msg("batch submitted")
	go p.feed(b)
	return b
}

// Run submits jobs and waits for the summary. The error is the context's
// when the batch was cut short.
func (p *Pool) Run(ctx context.Context, jobs []domain.Job, opts SubmitOptions) (domain.BatchSummary, error) {
	b := p.Submit(ctx, jobs, opts)
	s := b.Wait()
	if err := ctx.Err(); err != nil {
		return s, err
	}
	return s, nil
}

func (p *Pool) feed(b *Batch) {
	for i, job := range b.jobs {
		t := &task{batch: b, index: i, job: job}
		select {
		case p.tasks <- t:
		case <-b.ctx.Done():
			b.cancelFrom(i, b.ctx.Err())
			return
		case <-p.quit:
			b.cancelFrom(i, ErrPoolStopped)
			return
		}
	}
}

func (p *Pool) worker(id int, r Runner) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			if err := t.batch.ctx.Err(); err != nil {
				t.batch.record(t.index, cancelled(t.job, err))
				continue
			}
			res := p.execute(log, r, t)
			t.batch.record(t.index, res)
		}
	}
}

// execute runs one job, turning a runner panic into a failed result.
func (p *Pool) execute(log zerolog.Logger, r Runner, t *task) (res domain.Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("file", t.job.SourcePath).Msg("runner panicked")
			res = domain.FailedWith(t.job, "", domain.Failed(fmt.Sprintf("worker panic: %v", rec), nil), time.Since(start))
		}
	}()
	return r.Run(t.batch.ctx, t.job)
}

func cancelled(job domain.Job, err error) domain.Result {
	return domain.FailedWith(job, "", domain.Failed("cancelled before start", err), 0)
}

// Batch tracks one submitted set of jobs.
type Batch struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	jobs   []domain.Job

	mu       sync.Mutex
	results  []domain.Result
	filled   []bool
	done     int
	progress chan Progress
	pending  *Progress
	closed   bool

	onProgress func(Progress)
	finished   chan struct{}
}

func newBatch(ctx context.Context, jobs []domain.Job, opts SubmitOptions) *Batch {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		ID:         id,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       jobs,
		results:    make([]domain.Result, len(jobs)),
		filled:     make([]bool, len(jobs)),
		progress:   make(chan Progress, progressBuffer),
		onProgress: opts.OnProgress,
		finished:   make(chan struct{}),
	}
	go b.drain()
	return b
}

// Total is the number of submitted jobs.
func (b *Batch) Total() int { return len(b.jobs) }

// Cancel stops dispatching the batch. Running jobs see a cancelled context.
func (b *Batch) Cancel() { b.cancel() }

// Done reports how many jobs have a result.
func (b *Batch) Done() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Finished is closed once every job has a result and all progress callbacks
// have returned.
func (b *Batch) Finished() <-chan struct{} { return b.finished }

// Wait blocks until the batch is finished and returns its summary.
func (b *Batch) Wait() domain.BatchSummary {
	<-b.finished
	b.cancel()
	return b.Snapshot()
}

// Snapshot summarizes the results recorded so far. Jobs without a result
// yet are reported as pending.
func (b *Batch) Snapshot() domain.BatchSummary {
	b.mu.Lock()
	results := make([]domain.Result, len(b.results))
	for i := range b.results {
		if b.filled[i] {
			results[i] = b.results[i]
			continue
		}
		results[i] = domain.Result{Index: i, Job: b.jobs[i], Status: domain.StatusPending}
	}
	b.mu.Unlock()
	return domain.Summarize(b.ID, results)
}

func (b *Batch) record(i int, res domain.Result) {
	res.Index = i
	res.Job = b.jobs[i]
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filled[i] {
		return
	}
	b.results[i] = res
	b.filled[i] = true
	b.done++
	ev := Progress{BatchID: b.ID, Done: b.done, Total: len(b.jobs), Result: res}
	select {
	case b.progress <- ev:
	default:
		b.pending = &ev
	}
	if b.done == len(b.jobs) {
		b.closeLocked()
	}
}

// cancelFrom records every job from index i on that has no result yet.
func (b *Batch) cancelFrom(i int, err error) {
	for ; i < len(b.jobs); i++ {
		b.record(i, cancelled(b.jobs[i], err))
	}
}

func (b *Batch) closeProgress() {
	b.mu.Lock()
	b.closeLocked()
	b.mu.Unlock()
}

func (b *Batch) closeLocked() {
	if !b.closed {
		b.closed = true
		close(b.progress)
	}
}

// drain delivers progress off the worker goroutines. Events that overflowed
// the buffer are coalesced into the latest one.
func (b *Batch) drain() {
	defer close(b.finished)
	last := 0
	deliver := func(ev Progress) {
		if ev.Done <= last {
			return
		}
		last = ev.Done
		if b.onProgress != nil {
			b.onProgress(ev)
		}
	}
	for ev := range b.progress {
		deliver(ev)
	}
	b.mu.Lock()
	pending := b.pending
	b.mu.Unlock()
	if pending != nil {
		deliver(*pending)
	}
}
