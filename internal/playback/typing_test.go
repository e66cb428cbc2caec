package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevealerRevealsOneRunePerTick(t *testing.T) {
	clock := newTestClock()
	r := NewRevealer(clock, 50*time.Millisecond)

	var partials []string
	r.OnUpdate = func(p string) { partials = append(partials, p) }

	var done []string
	r.Reveal("湯。ok", func(full string) { done = append(done, full) })
	assert.True(t, r.Revealing())

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, "湯", r.Live())

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, "湯。o", r.Live())
	assert.Empty(t, done)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"湯。ok"}, done)
	assert.False(t, r.Revealing())
	assert.Equal(t, []string{"", "湯", "湯。", "湯。o", "湯。ok"}, partials)
}

func TestRevealerReplaceCancelsPreviousReveal(t *testing.T) {
	clock := newTestClock()
	r := NewRevealer(clock, 10*time.Millisecond)

	var mu sync.Mutex
	var done []string
	commit := func(full string) {
		mu.Lock()
		done = append(done, full)
		mu.Unlock()
	}

	r.Reveal("first message", commit)
	clock.Advance(30 * time.Millisecond)
	require.Equal(t, "fir", r.Live())

	r.Reveal("second", commit)
	assert.Equal(t, "", r.Live())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, "second", r.Live())
	assert.Equal(t, []string{"second"}, done)
}

func TestRevealerCancelDoesNotCommit(t *testing.T) {
	clock := newTestClock()
	r := NewRevealer(clock, 0)

	called := false
	r.Reveal("never committed", func(string) { called = true })
	clock.Advance(DefaultTypingInterval * 3)
	r.Cancel()
	clock.Advance(time.Minute)

	assert.False(t, called)
	assert.False(t, r.Revealing())
	assert.Equal(t, 0, clock.Pending())
}

func TestRevealerEmptyTextCompletesOnFirstTick(t *testing.T) {
	clock := newTestClock()
	r := NewRevealer(clock, 50*time.Millisecond)

	var got *string
	r.Reveal("", func(full string) { got = &full })
	clock.Advance(50 * time.Millisecond)

	require.NotNil(t, got)
	assert.Equal(t, "", *got)
}

func TestRevealerNeverEmitsPartialAfterNewerReveal(t *testing.T) {
	clock := newTestClock()
	r := NewRevealer(clock, 10*time.Millisecond)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var partials []string
	r.OnUpdate = func(p string) {
		if p == "o" {
			close(entered)
			<-release
		}
		mu.Lock()
		partials = append(partials, p)
		mu.Unlock()
	}

	r.Reveal("old", nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clock.Advance(10 * time.Millisecond)
	}()
	<-entered
	go func() {
		defer wg.Done()
		r.Reveal("new", nil)
	}()
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "o", ""}, partials)
	assert.Equal(t, "", r.Live())
}

func TestRevealerResetBlanksLiveText(t *testing.T) {
	clock := newTestClock()
	r := NewRevealer(clock, 10*time.Millisecond)

	var partials []string
	r.OnUpdate = func(p string) { partials = append(partials, p) }

	r.Reveal("ab", nil)
	clock.Advance(time.Second)
	require.Equal(t, "ab", r.Live())

	r.Reset()
	assert.Equal(t, "", r.Live())
	assert.False(t, r.Revealing())
	assert.Equal(t, []string{"", "a", "ab", ""}, partials)

	r.Reset()
	assert.Len(t, partials, 4)
	assert.Equal(t, 0, clock.Pending())
}
