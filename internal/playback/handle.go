package playback

// Handle tracks the timers of the current task. Starting a task through
// Replace cancels whatever the previous task left pending. Handle is not
// safe for concurrent use; owners guard it with their own mutex and check
// Live under that same mutex before applying a timer callback.
type Handle struct {
	gen    uint64
	timers []Timer
}

// Replace cancels the current task and returns the token of the new one.
func (h *Handle) Replace() uint64 {
	h.Cancel()
	return h.gen
}

// Cancel stops all pending timers and invalidates the current token.
func (h *Handle) Cancel() {
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	h.gen++
}

// Track attaches a timer to the task identified by token. A stale token
// stops the timer right away.
func (h *Handle) Track(token uint64, t Timer) {
	if token != h.gen {
		t.Stop()
		return
	}
	h.timers = append(h.timers, t)
}

// Live reports whether token still identifies the current task.
func (h *Handle) Live(token uint64) bool {
	return token == h.gen
}

// Pending is the number of timers attached to the current task.
func (h *Handle) Pending() int {
	return len(h.timers)
}
