package runner

import (
	"context"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/steering"
)

type steerWait struct {
	pending  PendingSteering
	decision chan bool
}

// Submit sends a message, steering around a turn in flight. With no turn in
// flight it is SendMessage. Otherwise the message is compared against the
// unresolved objectives of the current run: a continuation aborts the run
// and resends with the overlap context in the forwarded props, an unrelated
// message aborts and resends without it, and an ambiguous one waits for
// ResolveSteering or the steering window, whichever comes first. A timeout
// counts as unrelated.
func (r *Runner) Submit(ctx context.Context, in Input) (*TurnResult, error) {
	r.mu.Lock()
	inFlight := r.inFlight
	r.mu.Unlock()

	if !inFlight {
		return r.SendMessage(ctx, in)
	}
	if isEmpty(in) {
		return nil, ErrEmptyMessage
	}

	res := r.steerer.DecideAmong(in.Content, r.panel.Snapshot().UnresolvedObjectives())
	r.logger.Debug("Steering decision", "decision", res.Decision.String(), "objective_id", res.Objective.ID, "score", res.Score.Ratio)

	cont := res.Decision == steering.Continue
	if res.Decision == steering.Ambiguous {
		var err error
		if cont, err = r.awaitSteering(ctx, in.Content, res); err != nil {
			return nil, err
		}
	}

	if cont {
		overlap, err := r.steerer.Context(res)
		if err != nil {
			return nil, err
		}
		if in.ForwardedProps, err = withProp(in.ForwardedProps, steering.ContextKey, overlap); err != nil {
			return nil, err
		}
	}

	r.Abort()
	if err := r.waitIdle(ctx); err != nil {
		return nil, err
	}
	return r.SendMessage(ctx, in)
}

// ResolveSteering answers a pending ambiguous steering decision.
func (r *Runner) ResolveSteering(cont bool) error {
	r.mu.Lock()
	w := r.steer
	r.steer = nil
	r.mu.Unlock()

	if w == nil {
		return ErrNoSteering
	}
	w.decision <- cont
	r.notify()
	return nil
}

func (r *Runner) awaitSteering(ctx context.Context, message string, res steering.Result) (bool, error) {
	window := r.steerer.Window()
	w := &steerWait{
		pending: PendingSteering{
			Message:   message,
			Objective: res.Objective.Clone(),
			Score:     res.Score.Ratio,
			Deadline:  r.now().Add(window),
		},
		decision: make(chan bool, 1),
	}

	r.mu.Lock()
	if r.steer != nil {
		// A newer message supersedes the one still waiting.
		r.steer.decision <- false
	}
	r.steer = w
	r.mu.Unlock()
	r.notify()

	drop := func() {
		r.update(func() {
			if r.steer == w {
				r.steer = nil
			}
		})
	}

	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case cont := <-w.decision:
		return cont, nil
	case <-t.C:
		drop()
		r.logger.Debug("Steering window elapsed", "objective_id", res.Objective.ID)
		return false, nil
	case <-ctx.Done():
		drop()
		return false, ctx.Err()
	}
}
