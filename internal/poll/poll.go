// Package poll runs an action on a fixed interval for a bounded time.
//
// A loop started with [Start] never calls its action immediately: the first call happens one
// interval after start and each following interval is armed only after the previous call returns.
// The loop ends when the action asks it to stop, when the absolute deadline passes, or when the
// handle is cancelled.
package poll

import (
	"context"
	"sync"
	"time"
)

// Reason tells why a loop ended.
type Reason int

const (
	Running Reason = iota
	Stopped
	TimedOut
	Cancelled
)

func (r Reason) String() string {
	switch r {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case TimedOut:
		return "timed out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is returned by an [Action] after each tick.
type Outcome struct {
	stop   bool
	detail string
}

// Continue keeps the loop going.
var Continue = Outcome{}

// Stop ends the loop with reason [Stopped]; detail is reported by [Handle.Detail].
func Stop(detail string) Outcome {
	return Outcome{stop: true, detail: detail}
}

// Action is invoked once per tick. ctx is cancelled when the loop is cancelled.
type Action func(ctx context.Context) Outcome

type options struct {
	clock Clock
}

// Option configures a loop.
type Option func(*options)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// Handle controls a running loop.
type Handle struct {
	mu     sync.Mutex
	reason Reason
	detail string
	cancel context.CancelFunc
	done   chan struct{}
	calls  sync.WaitGroup
}

// Start launches a loop that calls action every interval until it stops, maxDuration has elapsed since
// start or the handle is cancelled. A maxDuration <= 0 never times out.
//
// Cancelling ctx has the same effect as [Handle.Cancel].
func Start(ctx context.Context, action Action, interval, maxDuration time.Duration, opts ...Option) *Handle {
	o := options{clock: RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	var deadline time.Time
	if maxDuration > 0 {
		deadline = o.clock.Now().Add(maxDuration)
	}

	go h.run(ctx, o.clock, action, interval, deadline)
	return h
}

func (h *Handle) run(ctx context.Context, clock Clock, action Action, interval time.Duration, deadline time.Time) {
	defer close(h.done)
	defer h.cancel()

	bounded := !deadline.IsZero()
	for {
		wait := interval
		if bounded {
			remaining := deadline.Sub(clock.Now())
			if remaining <= 0 {
				h.finish(TimedOut, "")
				return
			}
			wait = min(wait, remaining)
		}

		timer := clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			h.finish(Cancelled, "")
			return
		case <-timer.C():
		}

		if bounded && !clock.Now().Before(deadline) {
			h.finish(TimedOut, "")
			return
		}

		if !h.begin() {
			return
		}

		out := action(ctx)
		h.calls.Done()
		if out.stop {
			h.finish(Stopped, out.detail)
			return
		}
	}
}

// begin registers an action call while the loop is still running.
func (h *Handle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reason != Running {
		return false
	}
	h.calls.Add(1)
	return true
}

func (h *Handle) finish(r Reason, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reason == Running {
		h.reason = r
		h.detail = detail
	}
}

// Cancel ends the loop. A call already in flight sees its context cancelled and Cancel waits for it
// to return, so once Cancel returns no invocation of the action is running or can start.
// Cancelling a finished loop is a no-op. Cancel must not be called from inside the action.
func (h *Handle) Cancel() {
	h.finish(Cancelled, "")
	h.cancel()
	h.calls.Wait()
}

// Done is closed when the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the loop exits and returns why it ended.
func (h *Handle) Wait() Reason {
	<-h.done
	return h.Reason()
}

// Reason returns why the loop ended, or [Running].
func (h *Handle) Reason() Reason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Detail returns the value passed to [Stop], if the action stopped the loop.
func (h *Handle) Detail() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detail
}
