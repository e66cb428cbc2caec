package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mion-onsen/concierge/backend/internal/model/persona"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed())).RegisterRoutes(r)
	return r
}

func TestListPersonas(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var personas []persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &personas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(personas) != 1 || personas[0].ID != persona.DefaultID {
		t.Fatalf("unexpected personas: %+v", personas)
	}
	if personas[0].SystemPrompt != "" {
		t.Fatal("system prompt must not be exposed")
	}
}

func TestGetPersona(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas/mion", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas/socrates", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
