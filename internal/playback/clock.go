package playback

import (
	"sort"
	"sync"
	"time"
)

// Timer 是可取消的定时任务。
type Timer interface {
	Stop() bool
}

// Clock 抽象时间源，便于在测试中手动推进时间。
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock 使用真实时间。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualClock only moves when Advance is called. Due callbacks run on the
// goroutine calling Advance, in deadline order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	seq   uint64
	fn    func()
	fired bool
	dead  bool
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due,
// including timers scheduled by callbacks during the advance.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.removeLocked(next)
		c.mu.Unlock()

		next.fn()
	}
}

// Pending reports how many timers are scheduled and not yet fired or stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(c.pending))
	for _, t := range c.pending {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

func (c *ManualClock) removeLocked(t *manualTimer) {
	for i, p := range c.pending {
		if p == t {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.fired || t.dead {
		return false
	}
	t.dead = true
	c.removeLocked(t)
	return true
}
