package backend

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlock/squire/internal/logging"
)

func testLog() *logging.Logger {
	return logging.Discard()
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestQuiescePassthroughWhenDisabled(t *testing.T) {
	in := make(chan Event, 1)
	out := Quiesce(in, 0, nil)
	// Disabled guard returns the input channel untouched.
	assert.Equal(t, (<-chan Event)(in), out)
}

func TestQuiesceForwardsFullSequence(t *testing.T) {
	in := make(chan Event, 3)
	in <- Event{Type: EventFragment, Text: "a"}
	in <- Event{Type: EventFragment, Text: "b"}
	in <- Event{Type: EventDone, Result: &Result{Success: true}}
	close(in)

	events := collect(Quiesce(in, time.Second, nil))
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Text)
	assert.Equal(t, "b", events[1].Text)
	assert.Equal(t, EventDone, events[2].Type)
}

func TestQuiesceFiresOnStall(t *testing.T) {
	in := make(chan Event)
	var killed atomic.Bool

	out := Quiesce(in, 20*time.Millisecond, func() { killed.Store(true) })

	// One fragment arrives, then the producer stalls forever.
	go func() {
		in <- Event{Type: EventFragment, Text: "partial"}
	}()

	events := collect(out)
	require.Len(t, events, 2)
	assert.Equal(t, "partial", events[0].Text)
	assert.Equal(t, EventError, events[1].Type)
	assert.True(t, IsTimeout(events[1].Err))
	assert.True(t, killed.Load(), "onTimeout must fire so the subprocess dies")
}

func TestQuiesceTimerResetsPerEvent(t *testing.T) {
	in := make(chan Event)
	out := Quiesce(in, 50*time.Millisecond, nil)

	done := make(chan []Event, 1)
	go func() { done <- collect(out) }()

	// Each gap is below the window even though the total exceeds it.
	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(20 * time.Millisecond)
			in <- Event{Type: EventFragment, Text: "x"}
		}
		in <- Event{Type: EventDone, Result: &Result{Success: true}}
		close(in)
	}()

	events := <-done
	require.Len(t, events, 6)
	assert.Equal(t, EventDone, events[5].Type)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&TimeoutError{Window: time.Second}))
	assert.False(t, IsTimeout(&BackendError{Message: "boom"}))
	assert.False(t, IsTimeout(nil))
}
