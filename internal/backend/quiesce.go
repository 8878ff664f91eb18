package backend

import "time"

// Quiesce bounds the gap between successive events on in. When no event
// arrives within window, onTimeout is called (the invoker uses it to kill
// the subprocess), a timeout error event is emitted, and the returned
// sequence ends. Events already forwarded are unaffected.
//
// window <= 0 disables the guard and forwards in unchanged.
func Quiesce(in <-chan Event, window time.Duration, onTimeout func()) <-chan Event {
	if window <= 0 {
		return in
	}

	out := make(chan Event, 1)
	go func() {
		defer close(out)

		timer := time.NewTimer(window)
		defer timer.Stop()

		for {
			select {
			case ev, ok := <-in:
				if !ok {
					return
				}
				out <- ev
				if ev.Type == EventDone || ev.Type == EventError {
					return
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(window)

			case <-timer.C:
				if onTimeout != nil {
					onTimeout()
				}
				out <- Event{Type: EventError, Err: &TimeoutError{Window: window}}
				// Drain the producer so its goroutine can exit once
				// the subprocess dies.
				go func() {
					for range in {
					}
				}()
				return
			}
		}
	}()
	return out
}
