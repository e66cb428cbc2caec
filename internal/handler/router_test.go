package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/observability"
	chatService "github.com/mion-onsen/concierge/backend/internal/service/chat"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metrics := observability.NewMetrics("mion_router_test")
	sessions := chatService.NewService(chatService.Options{Metrics: metrics})
	t.Cleanup(sessions.Shutdown)
	return NewRouter(Deps{
		Personas:   persona.NewMemoryStore(persona.Seed()),
		Sessions:   sessions,
		Metrics:    metrics,
		SampleRate: 24000,
	})
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{}`)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"sessions":1`) {
		t.Fatalf("unexpected health response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(resp.Body.String(), "mion_router_test_active_sessions 1") {
		t.Fatalf("metrics missing active sessions:\n%s", resp.Body.String())
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestRouterSessionRoutesShareThePrefix(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{}`)))
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		t.Fatalf("decode session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID+"/events", nil).WithContext(ctx)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q (%d)", ct, resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID+"/history", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected history 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, VideoPath(created.ID), nil))
	if resp.Code != http.StatusNotFound || !strings.Contains(resp.Body.String(), "no video") {
		t.Fatalf("expected the video route to answer 404 with no video, got %d %s", resp.Code, resp.Body.String())
	}
}
