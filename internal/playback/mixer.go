package playback

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives gain-applied mono frames. Write returns once the frame has
// been consumed at real-time pace.
type Sink interface {
	Write(frame []float32) error
}

// DiscardSink drops frames but takes as long as they would take to play.
type DiscardSink struct {
	SampleRate int
}

func (d DiscardSink) Write(frame []float32) error {
	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	time.Sleep(time.Duration(len(frame)) * time.Second / time.Duration(rate))
	return nil
}

// SinkFactory opens an output. It is called at most once per Mixer.
type SinkFactory func() (Sink, error)

// DefaultSinkFactory is used by DefaultMixer. Builds with speaker support
// replace it during init.
var DefaultSinkFactory SinkFactory = func() (Sink, error) {
	return DiscardSink{SampleRate: DefaultSampleRate}, nil
}

// ErrMixerClosed is returned by Write after Close.
var ErrMixerClosed = errors.New("audio mixer closed")

// Mixer 是共享的增益节点加输出设备：首次写入时才打开输出，进程退出前由 Close 释放。
// 静音只改增益，不打断正在播放的会话。
type Mixer struct {
	open SinkFactory

	once    sync.Once
	sink    Sink
	openErr error

	writeMu sync.Mutex
	gain    atomic.Uint32
}

// NewMixer creates a mixer with unit gain.
func NewMixer(open SinkFactory) *Mixer {
	if open == nil {
		open = DefaultSinkFactory
	}
	m := &Mixer{open: open}
	m.gain.Store(math.Float32bits(1))
	return m
}

var (
	defaultMixerOnce sync.Once
	defaultMixer     *Mixer
)

// DefaultMixer returns the process-wide mixer, creating it on first use.
func DefaultMixer() *Mixer {
	defaultMixerOnce.Do(func() {
		defaultMixer = NewMixer(DefaultSinkFactory)
	})
	return defaultMixer
}

// SetMuted sets the gain to 0 or 1 immediately.
func (m *Mixer) SetMuted(muted bool) {
	if muted {
		m.SetGain(0)
		return
	}
	m.SetGain(1)
}

// SetGain sets a gain in [0, 1].
func (m *Mixer) SetGain(g float32) {
	if g < 0 {
		g = 0
	} else if g > 1 {
		g = 1
	}
	m.gain.Store(math.Float32bits(g))
}

// Gain returns the current gain.
func (m *Mixer) Gain() float32 {
	return math.Float32frombits(m.gain.Load())
}

// Muted reports whether the gain is zero.
func (m *Mixer) Muted() bool {
	return m.Gain() == 0
}

// Write scales frame by the current gain and hands it to the output.
func (m *Mixer) Write(frame []float32) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	sink, err := m.output()
	if err != nil {
		return err
	}

	g := m.Gain()
	scaled := make([]float32, len(frame))
	for i, s := range frame {
		scaled[i] = s * g
	}
	return sink.Write(scaled)
}

// Close releases the output if one was opened. An output that was never
// opened stays unopened, and every later Write fails with ErrMixerClosed.
func (m *Mixer) Close() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.once.Do(func() {})
	sink := m.sink
	m.sink, m.openErr = nil, ErrMixerClosed
	if c, ok := sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (m *Mixer) output() (Sink, error) {
	m.once.Do(func() {
		m.sink, m.openErr = m.open()
		if m.openErr != nil {
			m.openErr = fmt.Errorf("open audio output: %w", m.openErr)
		}
	})
	return m.sink, m.openErr
}
