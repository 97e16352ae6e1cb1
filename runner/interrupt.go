package runner

import (
	"context"
	"encoding/json"
)

// Custom event names that suspend the stream until the user answers.
const (
	EventInterrupt          = "interrupt"
	EventHumanInputRequired = "human_input_required"
)

type interruptWait struct {
	pending PendingInterrupt
	reply   chan any
}

// ResolveInterrupt answers the pending interrupt. The response is returned
// to the transport, which forwards it to the backend when it can.
func (r *Runner) ResolveInterrupt(response any) error {
	r.mu.Lock()
	w := r.interrupt
	r.interrupt = nil
	r.mu.Unlock()

	if w == nil {
		return ErrNoInterrupt
	}
	w.reply <- response
	r.notify()
	return nil
}

// awaitInterrupt blocks the run until ResolveInterrupt or ctx is done.
func (r *Runner) awaitInterrupt(ctx context.Context, name string, value json.RawMessage) (any, error) {
	w := &interruptWait{
		pending: PendingInterrupt{Name: name, Value: append(json.RawMessage(nil), value...)},
		reply:   make(chan any, 1),
	}
	r.update(func() { r.interrupt = w })
	r.logger.Info("Run waiting for human input", "event", name)

	select {
	case resp := <-w.reply:
		return resp, nil
	case <-ctx.Done():
		r.update(func() {
			if r.interrupt == w {
				r.interrupt = nil
			}
		})
		return nil, ctx.Err()
	}
}
