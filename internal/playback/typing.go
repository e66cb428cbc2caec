package playback

import (
	"sync"
	"time"
)

// DefaultTypingInterval 每个字符的显示间隔。
const DefaultTypingInterval = 50 * time.Millisecond

// Revealer reveals text one rune per tick into a live buffer. Only one
// reveal runs at a time; a new Reveal cancels the previous one so two
// reveals never write to the same buffer.
type Revealer struct {
	clock    Clock
	interval time.Duration

	// OnUpdate receives every partial text, starting with "".
	OnUpdate func(partial string)

	// emitMu orders OnUpdate calls; a tick re-checks its token under it.
	emitMu sync.Mutex

	mu        sync.Mutex
	task      Handle
	live      string
	revealing bool
}

// NewRevealer creates a Revealer; interval <= 0 uses DefaultTypingInterval.
func NewRevealer(clock Clock, interval time.Duration) *Revealer {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	return &Revealer{clock: clock, interval: interval}
}

// Reveal starts revealing full. onDone runs once, after the last rune is
// shown, with the revealing flag already cleared. A superseded reveal never
// calls its onDone.
func (r *Revealer) Reveal(full string, onDone func(full string)) {
	runes := []rune(full)

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	token := r.task.Replace()
	r.live = ""
	r.revealing = true
	r.scheduleLocked(token, runes, 0, onDone)
	r.mu.Unlock()

	r.emit("")
}

// Cancel stops the current reveal without committing it. The live text
// stays as it was.
func (r *Revealer) Cancel() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	r.task.Cancel()
	r.revealing = false
	r.mu.Unlock()
}

// Reset cancels the current reveal and blanks the live text.
func (r *Revealer) Reset() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	r.task.Cancel()
	r.revealing = false
	changed := r.live != ""
	r.live = ""
	r.mu.Unlock()

	if changed {
		r.emit("")
	}
}

// Live returns the text revealed so far.
func (r *Revealer) Live() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Revealing reports whether a reveal is in progress.
func (r *Revealer) Revealing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealing
}

func (r *Revealer) scheduleLocked(token uint64, runes []rune, shown int, onDone func(string)) {
	r.task.Track(token, r.clock.AfterFunc(r.interval, func() {
		r.tick(token, runes, shown, onDone)
	}))
}

func (r *Revealer) tick(token uint64, runes []rune, shown int, onDone func(string)) {
	r.emitMu.Lock()
	r.mu.Lock()
	if !r.task.Live(token) {
		r.mu.Unlock()
		r.emitMu.Unlock()
		return
	}
	r.task.timers = nil

	if shown < len(runes) {
		shown++
		r.live = string(runes[:shown])
		partial := r.live
		r.scheduleLocked(token, runes, shown, onDone)
		r.mu.Unlock()
		r.emit(partial)
		r.emitMu.Unlock()
		return
	}

	r.revealing = false
	r.mu.Unlock()
	r.emitMu.Unlock()
	if onDone != nil {
		onDone(string(runes))
	}
}

func (r *Revealer) emit(partial string) {
	if r.OnUpdate != nil {
		r.OnUpdate(partial)
	}
}
