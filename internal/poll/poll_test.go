package poll_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/upsync/internal/poll"
	tu "github.com/desertthunder/upsync/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// tick waits for the loop to arm its timer and then fires it.
func tick(clock *tu.FakeClock, d time.Duration) {
	clock.BlockUntil(1)
	clock.Advance(d)
}

func waitReason(t *testing.T, h *poll.Handle) poll.Reason {
	t.Helper()
	select {
	case <-h.Done():
		return h.Reason()
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
		return poll.Running
	}
}

func TestLoop(t *testing.T) {
	const interval = 3 * time.Second

	t.Run("No Immediate Call", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			calls.Add(1)
			return poll.Continue
		}, interval, time.Minute, poll.WithClock(clock))
		defer h.Cancel()

		clock.BlockUntil(1)
		assert.Equal(t, int32(0), calls.Load())
		assert.Equal(t, poll.Running, h.Reason())
	})

	t.Run("Stops When Action Asks", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			if calls.Add(1) == 2 {
				return poll.Stop("resolved")
			}
			return poll.Continue
		}, interval, 5*time.Minute, poll.WithClock(clock))

		tick(clock, interval)
		tick(clock, interval)

		require.Equal(t, poll.Stopped, waitReason(t, h))
		assert.Equal(t, "resolved", h.Detail())
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 6*time.Second, clock.Since(epoch))
		assert.Equal(t, 0, clock.Waiters())
	})

	t.Run("Times Out At Absolute Deadline", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			calls.Add(1)
			return poll.Continue
		}, interval, 10*time.Second, poll.WithClock(clock))

		tick(clock, interval) // 3s
		tick(clock, interval) // 6s
		tick(clock, interval) // 9s
		tick(clock, time.Second)

		require.Equal(t, poll.TimedOut, waitReason(t, h))
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 10*time.Second, clock.Since(epoch))
	})

	t.Run("Tick At Deadline Does Not Call", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			calls.Add(1)
			return poll.Continue
		}, interval, 2*interval, poll.WithClock(clock))

		tick(clock, interval)
		tick(clock, interval)

		require.Equal(t, poll.TimedOut, waitReason(t, h))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Cancel Freezes Call Count", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			calls.Add(1)
			return poll.Continue
		}, interval, 5*time.Minute, poll.WithClock(clock))

		tick(clock, interval)
		tick(clock, interval)
		clock.BlockUntil(1)

		h.Cancel()
		require.Equal(t, poll.Cancelled, waitReason(t, h))

		for range 10 {
			clock.Advance(interval)
		}
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 0, clock.Waiters())
	})

	t.Run("Parent Context Cancels", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		ctx, cancel := context.WithCancel(context.Background())
		h := poll.Start(ctx, func(context.Context) poll.Outcome {
			return poll.Continue
		}, interval, 0, poll.WithClock(clock))

		clock.BlockUntil(1)
		cancel()

		assert.Equal(t, poll.Cancelled, waitReason(t, h))
	})

	t.Run("Unbounded Loop Keeps Going", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			calls.Add(1)
			return poll.Continue
		}, 30*time.Second, 0, poll.WithClock(clock))

		for range 200 {
			tick(clock, 30*time.Second)
		}
		clock.BlockUntil(1)
		assert.Equal(t, int32(200), calls.Load())
		assert.Equal(t, poll.Running, h.Reason())

		h.Cancel()
		assert.Equal(t, poll.Cancelled, waitReason(t, h))
	})

	t.Run("Ticks Are Sequential", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		entered := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
			return poll.Continue
		}, interval, 0, poll.WithClock(clock))
		defer h.Cancel()

		tick(clock, interval)
		<-entered

		// The first call is still running, so no timer is armed however far the clock moves.
		clock.Advance(10 * interval)
		assert.Equal(t, 0, clock.Waiters())
		assert.Equal(t, int32(1), calls.Load())

		close(release)
		tick(clock, interval)
		clock.BlockUntil(1)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Cancel During Call", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		entered := make(chan struct{})
		var calls atomic.Int32
		var h *poll.Handle
		h = poll.Start(context.Background(), func(ctx context.Context) poll.Outcome {
			calls.Add(1)
			close(entered)
			<-ctx.Done()
			return poll.Continue
		}, interval, 0, poll.WithClock(clock))

		tick(clock, interval)
		<-entered
		h.Cancel()

		assert.Equal(t, poll.Cancelled, waitReason(t, h))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Cancel Waits For Call In Flight", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		entered := make(chan struct{})
		release := make(chan struct{})
		var calls, returned atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
			returned.Add(1)
			return poll.Continue
		}, interval, 0, poll.WithClock(clock))

		tick(clock, interval)
		<-entered

		cancelled := make(chan struct{})
		go func() {
			h.Cancel()
			close(cancelled)
		}()

		select {
		case <-cancelled:
			t.Fatal("Cancel returned while the action was still running")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		select {
		case <-cancelled:
		case <-time.After(2 * time.Second):
			t.Fatal("Cancel did not return")
		}

		assert.Equal(t, int32(1), returned.Load())
		clock.Advance(10 * interval)
		assert.Equal(t, poll.Cancelled, waitReason(t, h))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Cancel After Finish Keeps Reason", func(t *testing.T) {
		clock := tu.NewFakeClock(epoch)
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			return poll.Stop("")
		}, interval, 0, poll.WithClock(clock))

		tick(clock, interval)
		require.Equal(t, poll.Stopped, waitReason(t, h))

		h.Cancel()
		assert.Equal(t, poll.Stopped, h.Reason())
	})

	t.Run("Real Clock", func(t *testing.T) {
		var calls atomic.Int32
		h := poll.Start(context.Background(), func(context.Context) poll.Outcome {
			if calls.Add(1) == 3 {
				return poll.Stop("")
			}
			return poll.Continue
		}, time.Millisecond, time.Minute)

		assert.Equal(t, poll.Stopped, waitReason(t, h))
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "running", poll.Running.String())
	assert.Equal(t, "stopped", poll.Stopped.String())
	assert.Equal(t, "timed out", poll.TimedOut.String())
	assert.Equal(t, "cancelled", poll.Cancelled.String())
	assert.Equal(t, "unknown", poll.Reason(42).String())
}
