// Package progress implements the fire-and-forget progress callback
// contract (spec §6): a (phase, percent, message) function invoked at each
// phase milestone. The design note in spec §9 is explicit that a slow
// listener must never block a phase, so Reporter never calls the callback
// synchronously from the phase goroutine — it hands the event to a
// buffered channel and a single drain goroutine calls the user's callback.
package progress

import "log/slog"

// Callback is invoked for each progress milestone. Implementations must be
// non-blocking and safe for concurrent invocation (spec §6): multiple
// phases, or multiple concurrent tasks within one phase, may report
// progress at the same time.
type Callback func(phase int, percent float64, message string)

// Event is one progress milestone.
type Event struct {
	Phase   int
	Percent float64
	Message string
}

// Reporter fans Events out to a user Callback without ever blocking the
// caller, even if the callback is slow or the channel briefly fills.
type Reporter struct {
	events chan Event
	done   chan struct{}
}

// NewReporter starts the drain goroutine and returns a ready Reporter. The
// caller must call Close when the audit finishes to release the goroutine.
func NewReporter(cb Callback) *Reporter {
	r := &Reporter{
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	if cb == nil {
		cb = func(int, float64, string) {}
	}
	go func() {
		defer close(r.done)
		for e := range r.events {
			cb(e.Phase, e.Percent, e.Message)
		}
	}()
	return r
}

// Report enqueues an event. If the buffer is full (a stalled listener), the
// event is dropped rather than blocking the phase — progress reporting is
// best-effort, never load-bearing.
func (r *Reporter) Report(phase int, percent float64, message string) {
	select {
	case r.events <- Event{Phase: phase, Percent: percent, Message: message}:
	default:
		slog.Warn("progress reporter buffer full, dropping event",
			"phase", phase, "percent", percent)
	}
}

// Close stops accepting events and waits for the drain goroutine to finish
// delivering whatever is already queued.
func (r *Reporter) Close() {
	close(r.events)
	<-r.done
}
