package concierge

import (
	"log"
	"sync"
	"time"
)

// EventType 标识推送给观察者的事件种类。
type EventType string

const (
	EventState    EventType = "state"
	EventMessage  EventType = "message"
	EventCaption  EventType = "caption"
	EventSubtitle EventType = "subtitle"
	EventAudio    EventType = "audio"
	EventAudioEnd EventType = "audio_end"
	EventVisual   EventType = "visual"
)

// Event is one observable change of an orchestrator.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StateData is the payload of EventState.
type StateData struct {
	State State `json:"state"`
}

// TextData is the payload of EventCaption and EventSubtitle.
type TextData struct {
	Text string `json:"text"`
}

// AudioData is the payload of EventAudio.
type AudioData struct {
	DurationMs int64 `json:"durationMs"`
	SampleRate int   `json:"sampleRate"`
}

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 256

// Broker fans events out to subscribers. A subscriber that falls behind
// loses events instead of blocking the publisher.
type Broker struct {
	buffer int

	mu     sync.Mutex
	next   uint64
	subs   map[uint64]chan Event
	closed bool
}

// NewBroker creates a broker; buffer <= 0 uses DefaultSubscriberBuffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broker{buffer: buffer, subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it may be called more than once.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[concierge] subscriber %d lagging, dropped %s event", id, ev.Type)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
