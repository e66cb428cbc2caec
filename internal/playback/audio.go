package playback

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// FrameDuration is how much audio is handed to the mixer per write.
const FrameDuration = 20 * time.Millisecond

// Session outcomes reported through Controller.OnSession.
const (
	OutcomeCompleted   = "completed"
	OutcomeStopped     = "stopped"
	OutcomeDecodeError = "decode_error"
	OutcomeOutputError = "output_error"
)

// Controller plays one clip at a time through a shared Mixer.
type Controller struct {
	mixer      *Mixer
	sampleRate int

	// OnSession observes how each play request ended. Optional.
	OnSession func(outcome string)

	mu     sync.Mutex
	active *audioSession
	level  atomic.Uint64
}

type audioSession struct {
	clip     Clip
	onEnded  func()
	halt     chan struct{}
	haltOnce sync.Once
	done     chan struct{}
	endOnce  sync.Once
}

func (s *audioSession) stop() {
	s.haltOnce.Do(func() { close(s.halt) })
}

func (s *audioSession) end() {
	s.endOnce.Do(func() {
		if s.onEnded != nil {
			s.onEnded()
		}
	})
}

// NewController creates a controller bound to mixer. A nil mixer uses DefaultMixer.
func NewController(mixer *Mixer, sampleRate int) *Controller {
	if mixer == nil {
		mixer = DefaultMixer()
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Controller{mixer: mixer, sampleRate: sampleRate}
}

// Decode turns a base64 PCM16 payload into a clip at the controller's rate.
func (c *Controller) Decode(payload string) (Clip, error) {
	return DecodeBase64PCM(payload, c.sampleRate)
}

// Play stops the active session, decodes payload and plays it. A payload
// that fails to decode counts as ended: onEnded is called and the failure
// is logged.
func (c *Controller) Play(payload string, onEnded func()) {
	c.Stop()
	clip, err := c.Decode(payload)
	if err != nil {
		log.Printf("[playback] decode audio failed: %v", err)
		c.observe(OutcomeDecodeError)
		if onEnded != nil {
			onEnded()
		}
		return
	}
	c.PlayClip(clip, onEnded)
}

// PlayClip stops the active session and starts clip. onEnded fires exactly
// once, when the clip finishes or when it is stopped.
func (c *Controller) PlayClip(clip Clip, onEnded func()) {
	s := &audioSession{
		clip:    clip,
		onEnded: onEnded,
		halt:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.active
	c.active = s
	c.mu.Unlock()

	if prev != nil {
		c.finish(prev)
	}
	go c.run(s)
}

// Stop ends the active session, if any, and waits for its frames to drain.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s != nil {
		c.finish(s)
	}
}

// SetMuted adjusts the shared gain without touching the active session.
func (c *Controller) SetMuted(muted bool) {
	c.mixer.SetMuted(muted)
}

// Muted reports the shared mute state.
func (c *Controller) Muted() bool {
	return c.mixer.Muted()
}

// Playing reports whether a session is active.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Level is the RMS of the most recent frame after gain, 0 when idle.
func (c *Controller) Level() float64 {
	return math.Float64frombits(c.level.Load())
}

func (c *Controller) finish(s *audioSession) {
	s.stop()
	<-s.done
	s.end()
}

func (c *Controller) run(s *audioSession) {
	defer close(s.done)

	outcome := OutcomeCompleted
	frame := int(time.Duration(s.clip.SampleRate) * FrameDuration / time.Second)
	if frame <= 0 {
		frame = 1
	}

	samples := s.clip.Samples
loop:
	for start := 0; start < len(samples); start += frame {
		select {
		case <-s.halt:
			outcome = OutcomeStopped
			break loop
		default:
		}
		end := start + frame
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[start:end]
		if err := c.mixer.Write(chunk); err != nil {
			log.Printf("[playback] audio output failed: %v", err)
			outcome = OutcomeOutputError
			break
		}
		c.setLevel(RMS(chunk) * float64(c.mixer.Gain()))
	}
	c.setLevel(0)

	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	c.observe(outcome)
	s.end()
}

func (c *Controller) setLevel(v float64) {
	c.level.Store(math.Float64bits(v))
}

func (c *Controller) observe(outcome string) {
	if c.OnSession != nil {
		c.OnSession(outcome)
	}
}
