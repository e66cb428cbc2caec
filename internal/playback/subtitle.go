package playback

import (
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// DefaultWordsPerMinute 估算朗读速度。
	DefaultWordsPerMinute = 140
	// DefaultCharsPerWord 平均单词长度。
	DefaultCharsPerWord = 5
	// DefaultSubtitleLinger 最后一句结束后字幕保留的时间。
	DefaultSubtitleLinger = 2000 * time.Millisecond
)

// CharsPerSecond converts a speaking rate into characters per second. The
// historical formula divides by 50 rather than 60, which yields 14 chars/s
// for the default rate.
func CharsPerSecond(wordsPerMinute, charsPerWord int) float64 {
	if wordsPerMinute <= 0 || charsPerWord <= 0 {
		return float64(DefaultWordsPerMinute*DefaultCharsPerWord) / 50
	}
	return float64(wordsPerMinute*charsPerWord) / 50
}

// Cue 是字幕时间轴上的一项。
type Cue struct {
	Sentence string        `json:"sentence"`
	ShowAt   time.Duration `json:"showAt"`
}

// Timeline is computed once per bot turn and never partially rescheduled.
type Timeline struct {
	Cues    []Cue         `json:"cues"`
	ClearAt time.Duration `json:"clearAt"`
}

// BuildTimeline estimates each sentence's duration from its length.
func BuildTimeline(text string, charsPerSecond float64, linger time.Duration) Timeline {
	sentences := SplitSentences(text)
	cues := make([]Cue, 0, len(sentences))
	var offset time.Duration
	for _, sentence := range sentences {
		cues = append(cues, Cue{Sentence: sentence, ShowAt: offset})
		offset += sentenceDuration(sentence, charsPerSecond)
	}
	return Timeline{Cues: cues, ClearAt: offset + linger}
}

// BuildTimelineForDuration spreads a known audio duration over the sentences
// in proportion to their length.
func BuildTimelineForDuration(text string, total time.Duration, linger time.Duration) Timeline {
	sentences := SplitSentences(text)
	chars := 0
	for _, sentence := range sentences {
		chars += utf8.RuneCountInString(sentence)
	}
	cues := make([]Cue, 0, len(sentences))
	if chars == 0 {
		return Timeline{Cues: cues, ClearAt: total + linger}
	}

	var offset time.Duration
	for _, sentence := range sentences {
		cues = append(cues, Cue{Sentence: sentence, ShowAt: offset})
		share := float64(utf8.RuneCountInString(sentence)) / float64(chars)
		offset += time.Duration(share * float64(total))
	}
	return Timeline{Cues: cues, ClearAt: total + linger}
}

func sentenceDuration(sentence string, charsPerSecond float64) time.Duration {
	seconds := float64(utf8.RuneCountInString(sentence)) / charsPerSecond
	return time.Duration(seconds * float64(time.Second))
}

// SubtitleScheduler 管理唯一活跃的字幕时间轴。
type SubtitleScheduler struct {
	clock          Clock
	charsPerSecond float64
	linger         time.Duration

	// OnChange receives the subtitle to display; "" means cleared.
	OnChange func(subtitle string)

	mu      sync.Mutex
	task    Handle
	current string
}

// NewSubtitleScheduler creates a scheduler. Zero values fall back to the defaults.
func NewSubtitleScheduler(clock Clock, charsPerSecond float64, linger time.Duration) *SubtitleScheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if charsPerSecond <= 0 {
		charsPerSecond = CharsPerSecond(DefaultWordsPerMinute, DefaultCharsPerWord)
	}
	if linger <= 0 {
		linger = DefaultSubtitleLinger
	}
	return &SubtitleScheduler{clock: clock, charsPerSecond: charsPerSecond, linger: linger}
}

// Schedule replaces any active timeline with one estimated from text length.
func (s *SubtitleScheduler) Schedule(text string) Timeline {
	tl := BuildTimeline(text, s.charsPerSecond, s.linger)
	s.start(tl)
	return tl
}

// ScheduleForDuration replaces any active timeline with one fitted to a
// decoded audio duration.
func (s *SubtitleScheduler) ScheduleForDuration(text string, audio time.Duration) Timeline {
	if audio <= 0 {
		return s.Schedule(text)
	}
	tl := BuildTimelineForDuration(text, audio, s.linger)
	s.start(tl)
	return tl
}

// Cancel stops every pending cue and the final clear. It is safe to call
// when nothing is scheduled.
func (s *SubtitleScheduler) Cancel() {
	s.mu.Lock()
	s.task.Cancel()
	s.mu.Unlock()
}

// Current returns the subtitle on display.
func (s *SubtitleScheduler) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Active reports whether a timeline still has pending timers.
func (s *SubtitleScheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task.Pending() > 0
}

// Clear cancels the timeline and blanks the subtitle.
func (s *SubtitleScheduler) Clear() {
	s.mu.Lock()
	s.task.Cancel()
	changed := s.current != ""
	s.current = ""
	s.mu.Unlock()
	if changed {
		s.emit("")
	}
}

func (s *SubtitleScheduler) start(tl Timeline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.task.Replace()
	if len(tl.Cues) == 0 {
		return
	}
	for _, cue := range tl.Cues {
		sentence := cue.Sentence
		s.task.Track(token, s.clock.AfterFunc(cue.ShowAt, func() { s.fire(token, sentence) }))
	}
	s.task.Track(token, s.clock.AfterFunc(tl.ClearAt, func() { s.fire(token, "") }))
}

func (s *SubtitleScheduler) fire(token uint64, subtitle string) {
	s.mu.Lock()
	if !s.task.Live(token) {
		s.mu.Unlock()
		return
	}
	s.current = subtitle
	if subtitle == "" {
		s.task.timers = nil
	}
	s.mu.Unlock()
	s.emit(subtitle)
}

func (s *SubtitleScheduler) emit(subtitle string) {
	if s.OnChange != nil {
		s.OnChange(subtitle)
	}
}
