package notify

import "context"

// Transport performs the actual send for one job. Implementations own their
// network timeouts; an attempt exceeding the transport timeout fails the same
// way an explicit error does.
type Transport interface {
	Send(ctx context.Context, job JobHandle) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, job JobHandle) error

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, job JobHandle) error {
	return f(ctx, job)
}

// runWorker pulls jobs and performs delivery attempts. Rescheduling after a
// failed attempt is the dispatcher's decision, never the worker's.
func (d *Dispatcher) runWorker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case j := <-d.queue:
			j.attempt++
			attemptCtx, cancel := context.WithTimeout(d.ctx, d.opts.SendTimeout)
			errSend := d.transport.Send(attemptCtx, j.handle)
			cancel()
			d.report(j, errSend)
		}
	}
}
