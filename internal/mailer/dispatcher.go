package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/config"
)

var (
	ErrQueueFull        = errors.New("mail queue is full")
	ErrDispatcherClosed = errors.New("mail dispatcher is closed")
	ErrJobNotFound      = errors.New("mail job not found")
)

// DeliveryRecorder counts finished jobs.
type DeliveryRecorder interface {
	RecordDelivery(kind, status string)
}

type noopRecorder struct{}

func (noopRecorder) RecordDelivery(string, string) {}

const defaultRetryDelay = 500 * time.Millisecond

// Dispatcher delivers messages on a fixed pool of workers. Each job is
// retried with exponential backoff up to MaxRetries extra attempts.
type Dispatcher struct {
	config   *config.MailConfig
	sender   Sender
	logger   *zap.Logger
	recorder DeliveryRecorder

	queue  chan *Job
	jobs   map[string]*Job
	closed bool
	mu     sync.RWMutex

	wg          sync.WaitGroup
	started     bool
	cleanupDone chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDispatcher(config *config.MailConfig, sender Sender, logger *zap.Logger, recorder DeliveryRecorder) *Dispatcher {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	queueSize := config.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config:      config,
		sender:      sender,
		logger:      logger,
		recorder:    recorder,
		queue:       make(chan *Job, queueSize),
		jobs:        make(map[string]*Job),
		cleanupDone: make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers and the job cleanup loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.started || d.closed {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	workers := d.config.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	go d.cleanupLoop()
	d.logger.Info("mail dispatcher started", zap.Int("workers", workers))
}

// Enqueue schedules msg for delivery without blocking.
func (d *Dispatcher) Enqueue(kind Kind, msg *Message) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}

	job := newJob(uuid.NewString(), kind, msg)
	select {
	case d.queue <- job:
	default:
		d.recorder.RecordDelivery(string(kind), "dropped")
		return nil, ErrQueueFull
	}
	d.jobs[job.ID] = job

	d.logger.Debug("mail job enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)))
	return job, nil
}

func (d *Dispatcher) GetJob(jobID string) (*Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, exists := d.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// Stop refuses new jobs and waits for queued ones to finish. When ctx ends
// first, in-flight deliveries are cancelled and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		d.cancel()
		d.cancelPending()
		return nil
	}

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.cancel()
	<-drained
	<-d.cleanupDone
	return err
}

// cancelPending finishes jobs that were queued but never picked up.
func (d *Dispatcher) cancelPending() {
	for job := range d.queue {
		d.complete(job, JobStatusCancelled)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job *Job) {
	if d.ctx.Err() != nil {
		d.complete(job, JobStatusCancelled)
		return
	}

	job.setStatus(JobStatusSending)

	err := retry.Do(d.ctx, d.backoff(), func(ctx context.Context) error {
		sendCtx := ctx
		if d.config.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, d.config.SendTimeout)
			defer cancel()
		}

		err := d.sender.Send(sendCtx, job.Message)
		job.recordAttempt(err)
		if err != nil {
			d.logger.Warn("mail delivery attempt failed",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempts()),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})

	switch {
	case err == nil:
		d.complete(job, JobStatusSent)
	case d.ctx.Err() != nil:
		d.complete(job, JobStatusCancelled)
	default:
		d.logger.Error("mail delivery failed",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Int("attempts", job.Attempts()),
			zap.Error(err))
		d.complete(job, JobStatusFailed)
	}
}

func (d *Dispatcher) complete(job *Job, status JobStatus) {
	job.finish(status)
	d.recorder.RecordDelivery(string(job.Kind), string(status))
}

func (d *Dispatcher) backoff() retry.Backoff {
	delay := d.config.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return retry.WithMaxRetries(d.config.MaxRetries, retry.NewExponential(delay))
}
