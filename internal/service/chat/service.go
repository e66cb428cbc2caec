package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/observability"
	"github.com/mion-onsen/concierge/backend/internal/playback"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidLanguage = errors.New("invalid language tag")
)

// Services 是一个会话使用的外部服务组合。
type Services struct {
	Chat   concierge.ChatService
	Speech concierge.SpeechService
	Images concierge.ImageService
	Video  concierge.VideoService
}

// ProviderFactory builds the services for a new session.
type ProviderFactory func(ctx context.Context, session chat.Session, p persona.Persona) (Services, error)

// Options configures the registry.
type Options struct {
	Personas    persona.Store
	Providers   ProviderFactory
	Engine      config.EngineConfig
	TTL         time.Duration
	TurnTimeout time.Duration
	Metrics     *observability.Metrics
	// Sink opens the audio output of each session. Nil discards frames at
	// playback pace.
	Sink playback.SinkFactory
	// Mixer, when set, is shared by every session instead of one mixer per
	// session built from Sink. Its gain is left to the caller.
	Mixer *playback.Mixer
	Clock playback.Clock
	// VideoPath maps a session id to the route that serves its video.
	VideoPath func(sessionID string) string
}

type entry struct {
	session chat.Session
	orch    *concierge.Orchestrator
}

// Service 管理所有会话及其编排器。
type Service struct {
	opts Options
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService creates an empty registry.
func NewService(opts Options) *Service {
	if opts.Personas == nil {
		opts.Personas = persona.NewMemoryStore(persona.Seed())
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Providers == nil {
		opts.Providers = MockProviders(opts.Engine, 0, 0)
	}
	return &Service{
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*entry),
	}
}

// CreateSession provisions a session with a fresh orchestrator. An empty
// personaID selects the default concierge.
func (s *Service) CreateSession(ctx context.Context, personaID, lang string) (chat.Session, error) {
	personaID = strings.TrimSpace(personaID)
	if personaID == "" {
		personaID = persona.DefaultID
	}
	p, ok := s.opts.Personas.FindByID(personaID)
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	tag := language.Und
	if lang = strings.TrimSpace(lang); lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return chat.Session{}, fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
		}
		tag = parsed
		lang = tag.String()
	}

	now := s.now()
	session := chat.Session{
		ID:           uuid.NewString(),
		PersonaID:    p.ID,
		Language:     lang,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	services, err := s.opts.Providers(ctx, session, p)
	if err != nil {
		return chat.Session{}, fmt.Errorf("build services: %w", err)
	}

	orch := concierge.New(s.orchestratorConfig(session, p, tag, services))

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, orch: orch}
	s.mu.Unlock()

	s.opts.Metrics.SessionOpened()
	log.Printf("[session] created %s persona=%s language=%s", session.ID, p.ID, lang)
	return session, nil
}

func (s *Service) orchestratorConfig(session chat.Session, p persona.Persona, tag language.Tag, services Services) concierge.Config {
	engine := s.opts.Engine
	mixer := s.opts.Mixer
	if mixer == nil {
		sink := s.opts.Sink
		if sink == nil {
			rate := engine.SampleRate
			sink = func() (playback.Sink, error) { return playback.DiscardSink{SampleRate: rate}, nil }
		}
		mixer = playback.NewMixer(sink)
		mixer.SetMuted(engine.StartMuted)
	}
	var videoPath string
	if s.opts.VideoPath != nil {
		videoPath = s.opts.VideoPath(session.ID)
	}

	return concierge.Config{
		SessionID:      session.ID,
		Greeting:       p.Greeting,
		Language:       tag,
		Chat:           services.Chat,
		Speech:         services.Speech,
		Images:         services.Images,
		Video:          services.Video,
		Clock:          s.opts.Clock,
		Audio:          playback.NewController(mixer, engine.SampleRate),
		TypingInterval: engine.TypingInterval,
		CharsPerSecond: playback.CharsPerSecond(engine.WordsPerMinute, engine.CharsPerWord),
		SubtitleLinger: engine.SubtitleLinger,
		VideoPoll: concierge.PollPolicy{
			Interval: engine.VideoPollInterval,
			MaxPolls: engine.VideoMaxPolls,
		},
		VideoPath:   videoPath,
		TurnTimeout: s.opts.TurnTimeout,
		Metrics:     s.opts.Metrics,
	}
}

// Get returns the orchestrator of a session and marks it active.
func (s *Service) Get(sessionID string) (*concierge.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.session.LastActiveAt = s.now()
	return e.orch, nil
}

// GetSession retrieves session metadata by identifier.
func (s *Service) GetSession(sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return e.session, nil
}

// List returns every live session, oldest first.
func (s *Service) List() []chat.Session {
	s.mu.RLock()
	out := make([]chat.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close ends one session.
func (s *Service) Close(sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.release(e, "closed")
	return nil
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.release(e, "shutdown")
	}
}

// StartJanitor evicts idle sessions every interval until ctx ends.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle()
			}
		}
	}()
}

// expireIdle closes sessions untouched for longer than the TTL. Sessions
// with a turn in flight are kept.
func (s *Service) expireIdle() int {
	now := s.now()
	var expired []*entry

	s.mu.Lock()
	for id, e := range s.sessions {
		if now.Sub(e.session.LastActiveAt) < s.opts.TTL {
			continue
		}
		if e.orch.State() != concierge.StateIdle {
			continue
		}
		expired = append(expired, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range expired {
		s.release(e, "expired")
	}
	return len(expired)
}

func (s *Service) release(e *entry, reason string) {
	e.orch.Close()
	s.opts.Metrics.SessionClosed()
	log.Printf("[session] %s %s", reason, e.session.ID)
}
