package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ah-its-andy/docconv/internal/domain"
)

// Queue feeds single jobs from the watcher to the pool. A source path is
// accepted again only after its previous job was dequeued.
type Queue struct {
	ch        chan domain.Job
	mu        sync.Mutex
	enqueued  map[string]struct{}
	accepting bool
}

func NewQueue(buf int) *Queue {
	return &Queue{
		ch:        make(chan domain.Job, buf*2+10),
		enqueued:  make(map[string]struct{}),
		accepting: true,
	}
}

// Enqueue reports whether job was accepted. Duplicates, a full buffer and a
// stopped queue all reject.
func (q *Queue) Enqueue(job domain.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.accepting {
		return false
	}
	if _, ok := q.enqueued[job.SourcePath]; ok {
		return false
	}
	select {
	case q.ch <- job:
		q.enqueued[job.SourcePath] = struct{}{}
		return true
	default:
		return false
	}
}

func (q *Queue) Dequeued(path string) {
	q.mu.Lock()
	delete(q.enqueued, path)
	q.mu.Unlock()
}

func (q *Queue) StopAccepting() {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()
}

func (q *Queue) Chan() <-chan domain.Job { return q.ch }

// Len counts jobs queued or running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

// Dispatcher moves queued jobs into the pool as single-job batches.
type Dispatcher struct {
	pool   *Pool
	queue  *Queue
	onDone func(domain.BatchSummary)
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewDispatcher wires queue to pool. onDone, when set, receives every
// finished batch.
func NewDispatcher(pool *Pool, queue *Queue, onDone func(domain.BatchSummary), logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:   pool,
		queue:  queue,
		onDone: onDone,
		log:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run dispatches until ctx is done, then waits for the batches in flight.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			d.queue.StopAccepting()
			return nil
		case job := <-d.queue.Chan():
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer d.queue.Dequeued(job.SourcePath)
				s := d.pool.Submit(ctx, []domain.Job{job}, SubmitOptions{}).Wait()
				d.log.Debug().Str("batch", s.ID).Str("file", job.SourcePath).Msg("dispatched job finished")
				if d.onDone != nil {
					d.onDone(s)
				}
			}()
		}
	}
}
