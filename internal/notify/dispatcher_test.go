package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport records send times and fails the first `failures` attempts.
// When gated, Send signals entry and blocks until the gate is released.
type fakeTransport struct {
	mu       sync.Mutex
	sends    []time.Time
	failures int

	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeTransport) Send(ctx context.Context, _ JobHandle) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.sends = append(f.sends, time.Now())
	fail := len(f.sends) <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeTransport) sendTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.sends))
	copy(out, f.sends)
	return out
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, events <-chan Event, wait time.Duration) {
	t.Helper()
	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(wait):
	}
}

func TestEnqueue_InvalidPayloadIsSynchronous(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, Options{})
	d.Start()
	defer d.Close()

	_, errEnqueue := d.Enqueue(WelcomeEmail{UserName: "no-address"})
	if !errors.Is(errEnqueue, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", errEnqueue)
	}

	d.mu.Lock()
	pending := len(d.jobs)
	d.mu.Unlock()
	if pending != 0 {
		t.Fatalf("invalid payload must not create a job, found %d", pending)
	}
}

func TestIdempotencyKey_DeterministicFromContent(t *testing.T) {
	a := WelcomeEmail{To: "dev@example.com", UserName: "dev"}
	b := WelcomeEmail{To: "dev@example.com", UserName: "dev"}
	if IdempotencyKey(a) != IdempotencyKey(b) {
		t.Fatalf("identical payloads must share a key")
	}
	c := WelcomeEmail{To: "dev@example.com", UserName: "other"}
	if IdempotencyKey(a) == IdempotencyKey(c) {
		t.Fatalf("distinct payloads must not share a key")
	}
	d := DeviceAdded{To: "dev@example.com", DeviceName: "dev"}
	if IdempotencyKey(a) == IdempotencyKey(d) {
		t.Fatalf("payload name must contribute to the key")
	}
	if len(IdempotencyKey(a)) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(IdempotencyKey(a)))
	}
}

func TestEnqueue_DuplicatesCollapseToOneDelivery(t *testing.T) {
	transport := &fakeTransport{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 8),
	}
	d := NewDispatcher(transport, Options{Workers: 2})
	d.Start()
	defer d.Close()

	payload := DeviceAdded{To: "dev@example.com", DeviceName: "work laptop"}
	first, errFirst := d.Enqueue(payload)
	if errFirst != nil {
		t.Fatalf("first enqueue: %v", errFirst)
	}

	// The job is now in flight; hold it at the transport.
	<-transport.entered

	second, errSecond := d.Enqueue(payload)
	if errSecond != nil {
		t.Fatalf("second enqueue: %v", errSecond)
	}
	if first.JobID != second.JobID {
		t.Fatalf("duplicate enqueues must share a handle, got %s and %s", first.JobID, second.JobID)
	}

	close(transport.gate)

	e := waitEvent(t, d.Events())
	if e.Kind != EventCompleted || e.JobID != first.JobID {
		t.Fatalf("expected completed event for %s, got %+v", first.JobID, e)
	}
	assertNoEvent(t, d.Events(), 100*time.Millisecond)
	if got := transport.sendCount(); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}

func TestRetry_SucceedsOnThirdAttemptWithBackoff(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	d := NewDispatcher(transport, Options{Workers: 1, BackoffBase: 40 * time.Millisecond})
	d.Start()
	defer d.Close()

	handle, errEnqueue := d.Enqueue(WelcomeEmail{To: "dev@example.com", UserName: "dev"})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}

	e := waitEvent(t, d.Events())
	if e.Kind != EventCompleted || e.JobID != handle.JobID {
		t.Fatalf("expected completed event, got %+v", e)
	}

	times := transport.sendTimes()
	if len(times) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(times))
	}
	firstGap := times[1].Sub(times[0])
	secondGap := times[2].Sub(times[1])
	if firstGap < 40*time.Millisecond {
		t.Fatalf("first retry fired after %s, want >= 40ms", firstGap)
	}
	if secondGap < 80*time.Millisecond {
		t.Fatalf("second retry fired after %s, want >= 80ms (doubled)", secondGap)
	}
}

func TestExhaustion_SingleTerminalEventNoFurtherAttempts(t *testing.T) {
	transport := &fakeTransport{failures: 100}
	d := NewDispatcher(transport, Options{Workers: 1, BackoffBase: 5 * time.Millisecond})
	d.Start()
	defer d.Close()

	handle, errEnqueue := d.Enqueue(WelcomeEmail{To: "dev@example.com", UserName: "dev"})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}

	e := waitEvent(t, d.Events())
	if e.Kind != EventFailed || e.JobID != handle.JobID {
		t.Fatalf("expected failed event, got %+v", e)
	}
	if e.Reason == "" {
		t.Fatalf("terminal event must carry a reason")
	}

	assertNoEvent(t, d.Events(), 100*time.Millisecond)
	if got := transport.sendCount(); got != DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultMaxAttempts, got)
	}

	// The job left no record; a fresh trigger re-derives the same key and
	// is accepted as a brand-new job.
	transport.mu.Lock()
	transport.failures = 0
	transport.mu.Unlock()
	again, errAgain := d.Enqueue(WelcomeEmail{To: "dev@example.com", UserName: "dev"})
	if errAgain != nil {
		t.Fatalf("re-enqueue after exhaustion: %v", errAgain)
	}
	if again.JobID != handle.JobID {
		t.Fatalf("fresh trigger must re-derive the same key")
	}
	e = waitEvent(t, d.Events())
	if e.Kind != EventCompleted {
		t.Fatalf("expected completed event after re-trigger, got %+v", e)
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	transport := &fakeTransport{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 8),
	}
	d := NewDispatcher(transport, Options{Workers: 1, QueueSize: 1})
	d.Start()
	defer d.Close()

	if _, errA := d.Enqueue(WelcomeEmail{To: "a@example.com"}); errA != nil {
		t.Fatalf("enqueue a: %v", errA)
	}
	<-transport.entered // worker is holding job a

	if _, errB := d.Enqueue(WelcomeEmail{To: "b@example.com"}); errB != nil {
		t.Fatalf("enqueue b: %v", errB)
	}
	_, errC := d.Enqueue(WelcomeEmail{To: "c@example.com"})
	if !errors.Is(errC, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", errC)
	}

	// A rejected enqueue must not leave a phantom in-flight job.
	d.mu.Lock()
	_, phantom := d.jobs[IdempotencyKey(WelcomeEmail{To: "c@example.com"})]
	d.mu.Unlock()
	if phantom {
		t.Fatalf("rejected job left in the in-flight table")
	}

	close(transport.gate)
}

func TestClose_StopsWorkersAndClosesEvents(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, Options{Workers: 2})
	d.Start()

	handle, errEnqueue := d.Enqueue(WelcomeEmail{To: "dev@example.com"})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	e := waitEvent(t, d.Events())
	if e.JobID != handle.JobID {
		t.Fatalf("unexpected event %+v", e)
	}

	d.Close()
	if _, open := <-d.Events(); open {
		t.Fatalf("expected event stream closed after Close")
	}
}
