// Package dispatch sits between the event normalizer and the panel store.
// It drops events whose dedup key was already seen and batches the
// high-frequency thought stream into timed flush windows, so the reducer
// runs once per window instead of once per token.
package dispatch

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/moonshubh/Agent-Sparrow-sub001/event"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/panel"
)

// Defaults.
const (
	DefaultCapacity         = 1200
	DefaultWindow           = 200 * time.Millisecond
	DefaultMaxLatencyFactor = 4
)

// Applier receives batches in receipt order. *panel.Store implements it.
type Applier interface {
	Apply(evs ...event.Event) panel.State
}

// Options configures a Dispatcher.
type Options struct {
	// Capacity bounds the seen-key set.
	Capacity int
	// Window is the idle time after the last cadence event before the
	// queue is flushed.
	Window time.Duration
	// MaxLatencyFactor caps how long a continuous burst may defer a flush,
	// as a multiple of Window.
	MaxLatencyFactor int
	Logger           logging.Logger
}

// Stats counts what the dispatcher did since the last Reset.
type Stats struct {
	Accepted   int
	Duplicates int
	Flushes    int
}

// Dispatcher deduplicates and batches events for an Applier. The Applier
// must not call back into the Dispatcher.
type Dispatcher struct {
	target     Applier
	window     time.Duration
	maxLatency time.Duration
	logger     logging.Logger

	mu          sync.Mutex
	seen        *lru.Cache
	queue       []event.Event
	firstQueued time.Time
	timer       *time.Timer
	gen         uint64
	closed      bool
	stats       Stats
}

// New creates a Dispatcher feeding target.
func New(target Applier, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Capacity:         DefaultCapacity,
		Window:           DefaultWindow,
		MaxLatencyFactor: DefaultMaxLatencyFactor,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxLatencyFactor < 1 {
		opts.MaxLatencyFactor = 1
	}
	return &Dispatcher{
		target:     target,
		window:     opts.Window,
		maxLatency: opts.Window * time.Duration(opts.MaxLatencyFactor),
		logger:     logging.Component(opts.Logger, "dispatch"),
		seen:       lru.New(opts.Capacity),
	}
}

// Dispatch offers ev and reports whether it was accepted. Duplicates and
// events arriving after Close are dropped.
func (d *Dispatcher) Dispatch(ev event.Event) bool {
	if ev == nil {
		return false
	}
	key := event.Key(ev)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if _, dup := d.seen.Get(key); dup {
		d.stats.Duplicates++
		return false
	}
	d.seen.Add(key, struct{}{})
	d.stats.Accepted++

	if !event.IsCadence(ev) {
		batch := append(d.takeLocked(), ev)
		d.applyLocked(batch)
		return true
	}

	now := time.Now()
	if len(d.queue) == 0 {
		d.firstQueued = now
	}
	d.queue = append(d.queue, ev)
	elapsed := now.Sub(d.firstQueued)
	if elapsed >= d.maxLatency {
		d.applyLocked(d.takeLocked())
		return true
	}
	d.armLocked(min(d.window, d.maxLatency-elapsed))
	return true
}

// Flush applies any queued cadence events immediately.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if batch := d.takeLocked(); len(batch) > 0 {
		d.applyLocked(batch)
	}
}

// Reset drops the queue and forgets every seen key. It is called at the start
// of each turn.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.takeLocked()
	d.seen.Clear()
	d.stats = Stats{}
	d.closed = false
}

// Close flushes pending events and stops accepting new ones until Reset.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if batch := d.takeLocked(); len(batch) > 0 {
		d.applyLocked(batch)
	}
	d.closed = true
}

// Stats returns the counters since the last Reset.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Pending returns the number of queued cadence events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// takeLocked empties the queue and disarms the timer.
func (d *Dispatcher) takeLocked() []event.Event {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	batch := d.queue
	d.queue = nil
	return batch
}

func (d *Dispatcher) armLocked(after time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(after, func() { d.fire(gen) })
}

func (d *Dispatcher) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.closed {
		return
	}
	if batch := d.takeLocked(); len(batch) > 0 {
		d.applyLocked(batch)
	}
}

func (d *Dispatcher) applyLocked(batch []event.Event) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	d.target.Apply(batch...)
	d.stats.Flushes++
	logging.Flush(d.logger, len(batch), time.Since(start))
}
