package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mion-onsen/concierge/backend/internal/config"
	chatmodel "github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/observability"
	"github.com/mion-onsen/concierge/backend/internal/playback"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
	"github.com/mion-onsen/concierge/backend/internal/service/mock"
)

type blockingChat struct {
	release chan struct{}
}

func (b *blockingChat) Reply(ctx context.Context, _ string) (string, error) {
	select {
	case <-b.release:
		return "Hi there.", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func testEngine() config.EngineConfig {
	return config.EngineConfig{
		TypingInterval:    time.Millisecond,
		WordsPerMinute:    140,
		CharsPerWord:      5,
		SubtitleLinger:    time.Second,
		VideoPollInterval: time.Millisecond,
		VideoMaxPolls:     3,
		SampleRate:        24000,
	}
}

func newTestService(t *testing.T, providers ProviderFactory) (*Service, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics("mion_test")
	svc := NewService(Options{
		Providers: providers,
		Engine:    testEngine(),
		TTL:       time.Minute,
		Metrics:   metrics,
		Clock:     playback.NewManualClock(time.Unix(0, 0)),
	})
	t.Cleanup(svc.Shutdown)
	return svc, metrics
}

func TestCreateSessionDefaults(t *testing.T) {
	svc, metrics := newTestService(t, nil)

	session, err := svc.CreateSession(context.Background(), "", "ja-JP")
	require.NoError(t, err)
	assert.Equal(t, persona.DefaultID, session.PersonaID)
	assert.Equal(t, "ja-JP", session.Language)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))

	orch, err := svc.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, orch.SessionID())
	assert.Equal(t, concierge.StateIdle, orch.State())
}

func TestSharedMixerServesEverySession(t *testing.T) {
	mixer := playback.NewMixer(func() (playback.Sink, error) {
		return playback.DiscardSink{SampleRate: 24000}, nil
	})
	engine := testEngine()
	engine.StartMuted = true
	svc := NewService(Options{Engine: engine, Mixer: mixer, Clock: playback.NewManualClock(time.Unix(0, 0))})
	t.Cleanup(svc.Shutdown)

	first, err := svc.CreateSession(context.Background(), "", "")
	require.NoError(t, err)
	second, err := svc.CreateSession(context.Background(), "", "")
	require.NoError(t, err)
	assert.False(t, mixer.Muted(), "the caller owns the shared gain")

	a, err := svc.Get(first.ID)
	require.NoError(t, err)
	b, err := svc.Get(second.ID)
	require.NoError(t, err)

	a.SetMuted(true)
	assert.True(t, mixer.Muted())
	assert.True(t, b.Snapshot().Muted)
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, "iron-man", "")
	assert.ErrorIs(t, err, ErrPersonaNotFound)

	_, err = svc.CreateSession(ctx, "", "not a tag!")
	assert.ErrorIs(t, err, ErrInvalidLanguage)

	boom := errors.New("no credentials")
	svc.opts.Providers = func(context.Context, chatmodel.Session, persona.Persona) (Services, error) {
		return Services{}, boom
	}
	_, err = svc.CreateSession(ctx, "", "")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, svc.List())
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if _, err := svc.GetSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.Close("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListAndClose(t *testing.T) {
	svc, metrics := newTestService(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	orch, err := svc.Get(first.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Close(first.ID))
	assert.ErrorIs(t, orch.Greet(ctx), concierge.ErrClosed)
	assert.Len(t, svc.List(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))

	svc.Shutdown()
	assert.Empty(t, svc.List())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestExpireIdleKeepsBusySessions(t *testing.T) {
	release := make(chan struct{})
	busyChat := &blockingChat{release: release}
	calls := 0
	svc, _ := newTestService(t, func(context.Context, chatmodel.Session, persona.Persona) (Services, error) {
		calls++
		if calls == 1 {
			return Services{Chat: busyChat}, nil
		}
		return Services{Chat: mock.NewChatService(nil, 0)}, nil
	})
	defer close(release)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	busy, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)
	idle, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)

	orch, err := svc.Get(busy.ID)
	require.NoError(t, err)
	require.NoError(t, orch.Submit(ctx, "Hello"))

	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, svc.expireIdle())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.expireIdle())

	_, err = svc.GetSession(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.GetSession(busy.ID)
	assert.NoError(t, err)
}

func TestMockProvidersShareStudio(t *testing.T) {
	factory := MockProviders(testEngine(), 0, 0)
	a, err := factory(context.Background(), chatmodel.Session{ID: "a"}, persona.Seed()[0])
	require.NoError(t, err)
	b, err := factory(context.Background(), chatmodel.Session{ID: "b"}, persona.Seed()[0])
	require.NoError(t, err)

	assert.Same(t, a.Images, b.Images)
	assert.NotSame(t, a.Chat, b.Chat)
}

func TestNewProviderFactoryModes(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{Engine: testEngine(), Providers: config.ProviderConfig{Mode: config.ModeMock, Chat: "gemini", Speech: "gemini"}}
	factory, err := NewProviderFactory(ctx, cfg)
	require.NoError(t, err)
	services, err := factory(ctx, chatmodel.Session{ID: "s"}, persona.Seed()[0])
	require.NoError(t, err)
	assert.IsType(t, &mock.ChatService{}, services.Chat)

	cfg.Providers.Mode = config.ModeDev
	factory, err = NewProviderFactory(ctx, cfg)
	require.NoError(t, err)
	services, err = factory(ctx, chatmodel.Session{ID: "s"}, persona.Seed()[0])
	require.NoError(t, err)
	assert.IsType(t, &mock.ChatService{}, services.Chat)
	assert.IsType(t, &mock.Studio{}, services.Video)

	cfg.Providers.Mode = config.ModeProd
	_, err = NewProviderFactory(ctx, cfg)
	assert.Error(t, err)

	cfg.Providers.Chat = "ark"
	_, err = NewProviderFactory(ctx, cfg)
	assert.Error(t, err)
}
