package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
	"github.com/mion-onsen/concierge/backend/pkg/utils"
)

// KeepAliveInterval 空闲时发送注释行的间隔。
const KeepAliveInterval = 15 * time.Second

// SnapshotEvent is the first event of every stream.
const SnapshotEvent = "snapshot"

// Sessions resolves a session's orchestrator.
type Sessions interface {
	Get(sessionID string) (*concierge.Orchestrator, error)
}

// Handler streams orchestrator events via Server-Sent Events.
type Handler struct {
	sessions  Sessions
	keepAlive time.Duration
}

// New creates a new stream handler
func New(sessions Sessions) *Handler {
	return &Handler{sessions: sessions, keepAlive: KeepAliveInterval}
}

// RegisterRoutes mounts the event stream under /sessions.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	orch, err := h.sessions.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, SnapshotEvent, orch.Snapshot()); err != nil {
		log.Printf("[sse] session=%s initial snapshot failed: %v", sessionID, err)
		return
	}
	log.Printf("[sse] opened stream for session=%s", sessionID)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] client left session=%s", sessionID)
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": sessionID})
				log.Printf("[sse] session=%s closed", sessionID)
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				log.Printf("[sse] session=%s write failed: %v", sessionID, err)
				return
			}
		}
	}
}
