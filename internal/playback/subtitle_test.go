package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClock() *ManualClock {
	return NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

type subtitleRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *subtitleRecorder) record(s string) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
}

func (r *subtitleRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestCharsPerSecondDefault(t *testing.T) {
	assert.InDelta(t, 14.0, CharsPerSecond(140, 5), 1e-9)
	assert.InDelta(t, 14.0, CharsPerSecond(0, 0), 1e-9)
}

func TestBuildTimeline(t *testing.T) {
	// 14 runes and 6 runes at 14 chars/s.
	tl := BuildTimeline("Hello, friend. Relax.", 14, 2*time.Second)

	require.Len(t, tl.Cues, 2)
	assert.Equal(t, Cue{Sentence: "Hello, friend.", ShowAt: 0}, tl.Cues[0])
	assert.Equal(t, "Relax.", tl.Cues[1].Sentence)
	assert.Equal(t, time.Second, tl.Cues[1].ShowAt)
	runes := 6.0
	relax := time.Duration(runes / 14 * float64(time.Second))
	assert.Equal(t, time.Second+relax+2*time.Second, tl.ClearAt)
}

func TestBuildTimelineForDuration(t *testing.T) {
	tl := BuildTimelineForDuration("Aaaa. Bbbbbbbbbbb.", 3*time.Second, 2*time.Second)

	require.Len(t, tl.Cues, 2)
	assert.Equal(t, time.Duration(0), tl.Cues[0].ShowAt)
	// 5 of 17 runes.
	assert.InDelta(t, float64(3*time.Second)*5/17, float64(tl.Cues[1].ShowAt), float64(time.Millisecond))
	assert.Equal(t, 5*time.Second, tl.ClearAt)
}

func TestSubtitleSchedulerFiresInOrder(t *testing.T) {
	clock := newTestClock()
	rec := &subtitleRecorder{}
	s := NewSubtitleScheduler(clock, 14, 2*time.Second)
	s.OnChange = rec.record

	s.Schedule("Hello, friend. Relax.")
	clock.Advance(0)
	assert.Equal(t, "Hello, friend.", s.Current())

	clock.Advance(time.Second)
	assert.Equal(t, "Relax.", s.Current())
	assert.True(t, s.Active())

	clock.Advance(3 * time.Second)
	assert.Equal(t, "", s.Current())
	assert.False(t, s.Active())
	assert.Equal(t, []string{"Hello, friend.", "Relax.", ""}, rec.all())
	assert.Equal(t, 0, clock.Pending())
}

func TestSubtitleSchedulerReplacesTimeline(t *testing.T) {
	clock := newTestClock()
	rec := &subtitleRecorder{}
	s := NewSubtitleScheduler(clock, 14, 2*time.Second)
	s.OnChange = rec.record

	s.Schedule("A first long sentence here. And another one that takes a while.")
	clock.Advance(0)
	s.Schedule("New turn.")

	// Only the new timeline's cue plus its clear may remain.
	assert.Equal(t, 2, clock.Pending())

	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{"A first long sentence here.", "New turn.", ""}, rec.all())
}

func TestSubtitleSchedulerCancelIsIdempotent(t *testing.T) {
	clock := newTestClock()
	s := NewSubtitleScheduler(clock, 0, 0)

	s.Cancel()
	s.Schedule("One. Two.")
	s.Cancel()
	s.Cancel()

	assert.Equal(t, 0, clock.Pending())
	clock.Advance(time.Minute)
	assert.Equal(t, "", s.Current())
}

func TestSubtitleSchedulerIgnoresFiredButCancelledTimer(t *testing.T) {
	s := NewSubtitleScheduler(newTestClock(), 14, time.Second)
	s.mu.Lock()
	token := s.task.Replace()
	s.mu.Unlock()

	s.Cancel()
	s.fire(token, "stale")

	assert.Equal(t, "", s.Current())
}

func TestSubtitleSchedulerEmptyText(t *testing.T) {
	clock := newTestClock()
	s := NewSubtitleScheduler(clock, 14, time.Second)

	tl := s.Schedule("   ")
	assert.Empty(t, tl.Cues)
	assert.Equal(t, 0, clock.Pending())
}
