// Package notify delivers asynchronous notifications with bounded retries and
// no duplicate side effects. The dispatcher assigns deterministic idempotency
// keys, a bounded worker pool performs the sends, and terminal outcomes are
// reported on an explicit event stream. Jobs are not retained after delivery
// or exhaustion; exhaustion is silent data loss by design.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrQueueFull indicates the dispatcher queue cannot accept another job.
var ErrQueueFull = errors.New("notification queue full")

// Defaults for dispatcher options.
const (
	DefaultWorkers     = 3
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 1000 * time.Millisecond
	defaultQueueSize   = 128
	defaultEventBuffer = 64
	defaultSendTimeout = 15 * time.Second
)

// Options configures a Dispatcher. Zero values select the defaults.
type Options struct {
	Workers     int           // Concurrent deliveries.
	MaxAttempts int           // Total attempts per job, including the first.
	BackoffBase time.Duration // First retry delay; doubles per attempt.
	QueueSize   int           // Pending job buffer.
	SendTimeout time.Duration // Per-attempt transport deadline.
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	return o
}

// JobHandle is the job metadata exposed to enqueue callers: the deterministic
// job ID, the payload name, and the validated payload data.
type JobHandle struct {
	JobID string
	Name  Name
	Data  map[string]string
}

// job tracks one in-flight delivery. A job is either queued or inside exactly
// one worker, so attempt needs no lock of its own.
type job struct {
	handle  JobHandle
	attempt int
}

// Dispatcher accepts delivery requests, collapses duplicates by idempotency
// key, and drives retrying asynchronous delivery through its worker pool. It
// is an explicit, constructed component: tests build isolated instances
// rather than sharing process-wide state.
type Dispatcher struct {
	transport Transport
	opts      Options

	mu   sync.Mutex
	jobs map[string]*job

	queue  chan *job
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// NewDispatcher constructs a Dispatcher delivering through transport.
func NewDispatcher(transport Transport, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		transport: transport,
		opts:      opts,
		jobs:      make(map[string]*job),
		queue:     make(chan *job, opts.QueueSize),
		events:    make(chan Event, defaultEventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker pool. Calling Start more than once is a no-op.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.runWorker()
		}
	})
}

// Close stops the worker pool and closes the event stream. Queued jobs that
// have not started are dropped; there is no per-job cancellation primitive.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		close(d.events)
	})
}

// Events returns the delivery outcome stream. The consumer must drain it.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Enqueue validates the payload and schedules it for delivery. The returned
// handle carries the deterministic job ID; enqueueing a semantically identical
// payload while its job is still in flight returns the same handle and causes
// a single delivery. Enqueue never blocks on delivery.
func (d *Dispatcher) Enqueue(p Payload) (JobHandle, error) {
	if errValidate := p.Validate(); errValidate != nil {
		return JobHandle{}, errValidate
	}

	key := IdempotencyKey(p)
	handle := JobHandle{JobID: key, Name: p.Name(), Data: p.Fields()}

	d.mu.Lock()
	if existing, ok := d.jobs[key]; ok {
		h := existing.handle
		d.mu.Unlock()
		return h, nil
	}
	j := &job{handle: handle}
	d.jobs[key] = j
	d.mu.Unlock()

	select {
	case d.queue <- j:
		return handle, nil
	default:
		d.remove(key)
		return JobHandle{}, ErrQueueFull
	}
}

// report handles one attempt's outcome: remove-and-emit on success, reschedule
// with exponential backoff while attempts remain, remove-and-emit a single
// terminal failure once they are exhausted.
func (d *Dispatcher) report(j *job, errSend error) {
	if errSend == nil {
		d.remove(j.handle.JobID)
		d.emit(Event{Kind: EventCompleted, JobID: j.handle.JobID, Name: j.handle.Name})
		return
	}

	if j.attempt >= d.opts.MaxAttempts {
		d.remove(j.handle.JobID)
		log.WithError(errSend).WithField("job", j.handle.JobID).
			Warn("notification exhausted all delivery attempts")
		d.emit(Event{Kind: EventFailed, JobID: j.handle.JobID, Name: j.handle.Name, Reason: errSend.Error()})
		return
	}

	delay := d.opts.BackoffBase << (j.attempt - 1)
	log.WithError(errSend).WithField("job", j.handle.JobID).
		WithField("attempt", j.attempt).
		Debugf("delivery failed, retrying in %s", delay)

	time.AfterFunc(delay, func() {
		if d.ctx.Err() != nil {
			return
		}
		select {
		case d.queue <- j:
		case <-d.ctx.Done():
		}
	})
}

// remove drops a job from the in-flight table. The table holds no history:
// delivered and exhausted jobs leave no record beyond the emitted event.
func (d *Dispatcher) remove(key string) {
	d.mu.Lock()
	delete(d.jobs, key)
	d.mu.Unlock()
}

// emit publishes an event, giving up when the dispatcher shuts down.
func (d *Dispatcher) emit(e Event) {
	select {
	case d.events <- e:
	case <-d.ctx.Done():
	}
}
