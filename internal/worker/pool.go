package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by Submit when the job queue has no free slot.
var ErrQueueFull = errors.New("worker: job queue is full")

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("worker: dispatcher stopped")

// Job represents a unit of work to be executed.
type Job interface {
	Execute(ctx context.Context) error
	ID() string
}

// Worker pulls jobs from its own channel after registering it in the pool.
type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	log        *logrus.Entry
}

// NewWorker creates a new Worker.
func NewWorker(id int, workerPool chan chan Job, log *logrus.Entry) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		log:        log.WithField("worker_id", id),
	}
}

// Start runs the worker loop until quit is closed. A job already taken is
// always run to the end with ctx.
func (w Worker) Start(ctx context.Context, quit <-chan struct{}, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			// Register the current worker's JobChannel to the worker pool.
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-quit:
				w.log.Debug("Worker stopping")
				return
			}

			select {
			case job := <-w.JobChannel:
				w.run(ctx, job)
			case <-quit:
				w.log.Debug("Worker stopping")
				return
			}
		}
	}()
}

func (w Worker) run(ctx context.Context, job Job) {
	log := w.log.WithField("job_id", job.ID())
	log.Info("Started job")
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Job panicked")
		}
	}()
	if err := job.Execute(ctx); err != nil {
		log.WithError(err).Error("Error processing job")
		return
	}
	log.Info("Finished job")
}

// Dispatcher manages a pool of workers and dispatches jobs to them.
type Dispatcher struct {
	MaxWorkers int
	WorkerPool chan chan Job
	JobQueue   chan Job
	// OnDrop, when set before Run, receives every job that was accepted by
	// Submit but never reached a worker because of Stop.
	OnDrop func(Job)

	log     *logrus.Entry
	wg      sync.WaitGroup
	quit    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(maxWorkers, jobQueueSize int, log *logrus.Entry) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if jobQueueSize < 0 {
		jobQueueSize = 0
	}
	return &Dispatcher{
		MaxWorkers: maxWorkers,
		WorkerPool: make(chan chan Job, maxWorkers),
		JobQueue:   make(chan Job, jobQueueSize),
		log:        log,
		quit:       make(chan struct{}),
	}
}

// Run starts the dispatcher and its workers. Jobs run with ctx; Stop does not
// cancel it, so in-flight jobs finish on their own terms.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.WithField("workers", d.MaxWorkers).Info("Dispatcher starting")
	for i := 1; i <= d.MaxWorkers; i++ {
		NewWorker(i, d.WorkerPool, d.log).Start(ctx, d.quit, &d.wg)
	}

	d.wg.Add(1)
	go d.dispatch()
}

// dispatch hands queued jobs to idle workers one at a time so the queue stays
// bounded by its capacity.
func (d *Dispatcher) dispatch() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.JobQueue:
			if !d.handOff(job) {
				d.drop(job)
				return
			}
		case <-d.quit:
			d.log.Debug("Dispatcher stopping dispatch loop")
			return
		}
	}
}

func (d *Dispatcher) handOff(job Job) bool {
	select {
	case jobChannel := <-d.WorkerPool:
		select {
		case jobChannel <- job:
			return true
		case <-d.quit:
			return false
		}
	case <-d.quit:
		return false
	}
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.JobQueue <- job:
		d.log.WithField("job_id", job.ID()).Debug("Job submitted to queue")
		return nil
	default:
		d.log.WithField("job_id", job.ID()).Warn("Job queue full")
		return ErrQueueFull
	}
}

// QueueDepth is the number of jobs waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.JobQueue)
}

func (d *Dispatcher) drop(job Job) {
	d.log.WithField("job_id", job.ID()).Warn("Dispatcher stopped before job could run")
	if d.OnDrop != nil {
		d.OnDrop(job)
	}
}

// Stop stops accepting jobs and waits for running jobs to return. Jobs still
// in the queue are handed to OnDrop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.log.Info("Dispatcher initiating shutdown")
	close(d.quit)
	d.wg.Wait()

	dropped := 0
	for {
		select {
		case job := <-d.JobQueue:
			d.drop(job)
			dropped++
			continue
		default:
		}
		break
	}
	d.log.WithField("dropped", dropped).Info("Dispatcher: all workers have stopped")
}
