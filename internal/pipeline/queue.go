package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/billbox-app/invoice-ocr/internal/common"
)

// Job is one queued document.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Queue feeds documents to a Processor from a bounded channel with a
// fixed worker pool. Results are delivered through the OnResult callback;
// per-item failures are terminal records, never queue errors.
type Queue struct {
	proc     *Processor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult func(Job, *InvoiceRecord)

	ch        chan Job
	wg        sync.WaitGroup
	producers sync.WaitGroup
	once      sync.Once

	mu     sync.Mutex
	closed bool
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHandler sets the callback invoked once per finished job, from
// worker goroutines.
func WithResultHandler(fn func(Job, *InvoiceRecord)) QueueOption {
	return func(q *Queue) {
		q.onResult = fn
	}
}

func NewQueue(proc *Processor, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					ctx = common.WithRequestID(ctx, job.TraceID)
					ctx = common.WithSourceInfo(ctx, job.Path)
					rec := q.proc.ProcessFile(ctx, job.Path)
					cancel()

					if rec.Success {
						q.logger.Info("processed document", "worker_id", workerID, "path", job.Path)
					} else {
						q.logger.Error("document failed", "worker_id", workerID, "path", job.Path, "error", rec.ErrorMessage)
					}
					if q.onResult != nil {
						q.onResult(job, rec)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) Enqueue(_ context.Context, job Job) error {
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	// The closed check and the producer registration share the lock, but
	// the send must not: a full channel would otherwise hold the lock and
	// stall Shutdown until capacity frees.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return nil
	}
	q.producers.Add(1)
	q.mu.Unlock()
	defer q.producers.Done()

	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "path", job.Path)
	default:
		q.logger.Warn("queue full, applying backpressure", "path", job.Path)
		q.ch <- job
	}
	return nil
}

func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// In-flight Enqueues finish their sends before the channel closes;
	// the workers keep draining, so blocked producers always unstick.
	q.producers.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

// ProcessBatchParallel fans the paths across a worker pool and returns
// the records in input order. Execution order across items is
// unconstrained; there is no cross-item state.
func (p *Processor) ProcessBatchParallel(ctx context.Context, paths []string, workers int) []*InvoiceRecord {
	if workers <= 1 || len(paths) <= 1 {
		return p.ProcessBatch(ctx, paths)
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	records := make([]*InvoiceRecord, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				records[i] = p.ProcessFile(ctx, paths[i])
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return records
}
