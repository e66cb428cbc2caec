package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mion-onsen/concierge/backend/internal/config"
	chatmodel "github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/playback"
	chatservice "github.com/mion-onsen/concierge/backend/internal/service/chat"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
	"github.com/mion-onsen/concierge/backend/internal/service/mock"
)

const preferencesReply = "Here is your profile:\n```json\n" +
	`{"wellbeingProfile":{"skinType":"dry","muscleSoreness":"back","stressLevel":"high","waterTemperature":"hot","healthGoals":"relaxation"},` +
	`"aestheticProfile":{"atmosphere":"cedar","colorPalette":"autumn","timeOfDay":"dusk"}}` +
	"\n```\nPlease give me a moment."

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

func setupRouter(t *testing.T, script ...string) (*chi.Mux, *chatservice.Service) {
	r, svc, _ := setupRouterWithVideo(t, nil, script...)
	return r, svc
}

// setupRouterWithVideo wraps the mock studio's video with wrap when set.
func setupRouterWithVideo(t *testing.T, wrap func(concierge.VideoService) concierge.VideoService, script ...string) (*chi.Mux, *chatservice.Service, *playback.ManualClock) {
	t.Helper()
	engine := testEngine()
	studio := mock.NewStudio(0, 1)
	var video concierge.VideoService = studio
	if wrap != nil {
		video = wrap(studio)
	}
	clock := playback.NewManualClock(time.Unix(0, 0))
	svc := chatservice.NewService(testOptions(engine, clock, func(context.Context, chatmodel.Session, persona.Persona) (chatservice.Services, error) {
		return chatservice.Services{
			Chat:   mock.NewChatService(script, 0),
			Speech: mock.NewSpeechService(engine.SampleRate, 14, false),
			Images: studio,
			Video:  video,
		}, nil
	}))
	t.Cleanup(svc.Shutdown)

	r := chi.NewRouter()
	New(svc, engine.SampleRate).RegisterRoutes(r)
	return r, svc, clock
}

func testOptions(engine config.EngineConfig, clock playback.Clock, providers chatservice.ProviderFactory) chatservice.Options {
	return chatservice.Options{
		Providers: providers,
		Engine:    engine,
		Clock:     clock,
		VideoPath: VideoPath,
	}
}

// keyedVideo stands in for a provider whose links need credentials.
type keyedVideo struct {
	concierge.VideoService
}

func (keyedVideo) FetchVideo(_ context.Context, source string) ([]byte, string, error) {
	return []byte("mp4 from " + source), "video/mp4", nil
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) chatmodel.Session {
	t.Helper()
	resp := do(r, http.MethodPost, "/sessions", `{"language":"en"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var session chatmodel.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCreateSessionDefaultsToMION(t *testing.T) {
	r, _ := setupRouter(t)

	session := createSession(t, r)
	if session.PersonaID != persona.DefaultID {
		t.Fatalf("expected persona %s, got %s", persona.DefaultID, session.PersonaID)
	}

	resp := do(r, http.MethodPost, "/sessions", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for empty body, got %d", resp.Code)
	}
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/sessions", `{"personaId":"non-existent"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"error"`) {
		t.Fatalf("expected error body, got %s", resp.Body.String())
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	r, _ := setupRouter(t)

	for _, path := range []string{"/sessions/missing", "/sessions/missing/history", "/sessions/missing/audio.wav"} {
		if resp := do(r, http.MethodGet, path, ""); resp.Code != http.StatusNotFound {
			t.Fatalf("GET %s: expected 404, got %d", path, resp.Code)
		}
	}
	if resp := do(r, http.MethodDelete, "/sessions/missing", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSendMessageStatuses(t *testing.T) {
	r, svc := setupRouter(t, "Hi there.")
	session := createSession(t, r)
	path := "/sessions/" + session.ID + "/messages"

	if resp := do(r, http.MethodPost, path, `{"text":"   "}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, path, `{"text":"Hello"}`); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, path, `{"text":"Hello again"}`); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 while the turn is in flight, got %d", resp.Code)
	}

	orch, err := svc.Get(session.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	waitFor(t, func() bool { return orch.State() == concierge.StateRevealing })

	resp := do(r, http.MethodGet, "/sessions/"+session.ID+"/history", "")
	var history []chatmodel.Message
	if err := json.Unmarshal(resp.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Text != "Hello" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestGreetAndAudio(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)
	base := "/sessions/" + session.ID

	if resp := do(r, http.MethodGet, base+"/audio.wav", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any reply, got %d", resp.Code)
	}

	if resp := do(r, http.MethodPost, base+"/greet", ""); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}

	resp := do(r, http.MethodGet, base+"/audio.wav", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("unexpected content type %s", got)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("RIFF")) {
		t.Fatal("expected a RIFF header")
	}

	if resp := do(r, http.MethodPost, base+"/mute", `{"muted":true}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/mute", `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without muted, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/stop", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/replay", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	resp = do(r, http.MethodGet, base, "")
	var snap concierge.Snapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.Muted || !snap.HasAudio {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSelectConcept(t *testing.T) {
	r, svc, clock := setupRouterWithVideo(t, nil, preferencesReply)
	session := createSession(t, r)
	base := "/sessions/" + session.ID

	if resp := do(r, http.MethodPost, base+"/concepts/0/select", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before any concept, got %d", resp.Code)
	}

	if resp := do(r, http.MethodPost, base+"/messages", `{"text":"yes"}`); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	orch, _ := svc.Get(session.ID)
	waitFor(t, func() bool { return len(orch.Snapshot().Visual.Images) == 2 })

	if resp := do(r, http.MethodPost, base+"/concepts/x/select", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad index, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/concepts/1/select", ""); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	waitFor(t, func() bool {
		clock.Advance(time.Millisecond)
		return orch.Snapshot().Visual.VideoURL != ""
	})
	if resp := do(r, http.MethodGet, base+"/video", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a public video link, got %d", resp.Code)
	}

	if resp := do(r, http.MethodDelete, base+"/error", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := do(r, http.MethodDelete, base, ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if _, err := svc.GetSession(session.ID); err == nil {
		t.Fatal("expected session to be gone")
	}
}

func TestVideoIsProxiedWithoutCredentials(t *testing.T) {
	r, svc, clock := setupRouterWithVideo(t, func(v concierge.VideoService) concierge.VideoService {
		return keyedVideo{VideoService: v}
	}, preferencesReply)
	session := createSession(t, r)
	base := "/sessions/" + session.ID

	if resp := do(r, http.MethodGet, base+"/video", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any video, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/messages", `{"text":"yes"}`); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	orch, _ := svc.Get(session.ID)
	waitFor(t, func() bool { return len(orch.Snapshot().Visual.Images) == 2 })
	if resp := do(r, http.MethodPost, base+"/concepts/0/select", ""); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	waitFor(t, func() bool {
		clock.Advance(time.Millisecond)
		return orch.Snapshot().Visual.VideoURL != ""
	})

	if got := orch.Snapshot().Visual.VideoURL; got != VideoPath(session.ID) {
		t.Fatalf("expected the proxy path, got %q", got)
	}
	resp := do(r, http.MethodGet, base+"/video", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("unexpected content type %s", got)
	}
	if got := resp.Body.String(); !strings.HasPrefix(got, "mp4 from /videos/concept-") {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestErrorStatus(t *testing.T) {
	cases := map[error]int{
		chatservice.ErrSessionNotFound: http.StatusNotFound,
		concierge.ErrNoVideo:           http.StatusNotFound,
		concierge.ErrTurnInFlight:      http.StatusConflict,
		concierge.ErrVideoInFlight:     http.StatusConflict,
		concierge.ErrEmptyInput:        http.StatusBadRequest,
		concierge.ErrNoSuchConcept:     http.StatusBadRequest,
		concierge.ErrClosed:            http.StatusGone,
		context.DeadlineExceeded:       http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := ErrorStatus(err); got != want {
			t.Errorf("ErrorStatus(%v) = %d, want %d", err, got, want)
		}
	}
}
