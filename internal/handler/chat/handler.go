package chat

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/playback"
	chatService "github.com/mion-onsen/concierge/backend/internal/service/chat"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
	"github.com/mion-onsen/concierge/backend/pkg/utils"
)

// greetTimeout bounds the synchronous greeting, which includes speech synthesis.
const greetTimeout = time.Minute

// Sessions is the registry surface the handlers need.
type Sessions interface {
	CreateSession(ctx context.Context, personaID, lang string) (chat.Session, error)
	Get(sessionID string) (*concierge.Orchestrator, error)
	GetSession(sessionID string) (chat.Session, error)
	List() []chat.Session
	Close(sessionID string) error
}

// Handler 会话接口的HTTP处理器
type Handler struct {
	sessions   Sessions
	sampleRate int
}

// New 创建会话处理器
func New(sessions Sessions, sampleRate int) *Handler {
	if sampleRate <= 0 {
		sampleRate = playback.DefaultSampleRate
	}
	return &Handler{sessions: sessions, sampleRate: sampleRate}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/", h.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleSnapshot)
			r.Delete("/", h.handleCloseSession)
			r.Post("/greet", h.handleGreet)
			r.Post("/messages", h.handleSendMessage)
			r.Get("/history", h.handleHistory)
			r.Post("/mute", h.handleMute)
			r.Post("/stop", h.handleStop)
			r.Post("/replay", h.handleReplay)
			r.Get("/audio.wav", h.handleAudio)
			r.Get("/video", h.handleVideo)
			r.Post("/concepts/{index}/select", h.handleSelectConcept)
			r.Delete("/error", h.handleDismissError)
		})
	})
}

// ErrorStatus maps registry and orchestrator errors onto HTTP statuses.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, concierge.ErrNoVideo):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrPersonaNotFound),
		errors.Is(err, chatService.ErrInvalidLanguage),
		errors.Is(err, concierge.ErrEmptyInput),
		errors.Is(err, concierge.ErrNoSuchConcept):
		return http.StatusBadRequest
	case errors.Is(err, concierge.ErrTurnInFlight),
		errors.Is(err, concierge.ErrVideoInFlight),
		errors.Is(err, concierge.ErrAlreadyGreeted):
		return http.StatusConflict
	case errors.Is(err, concierge.ErrClosed):
		return http.StatusGone
	case errors.Is(err, concierge.ErrVideoUnconfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	utils.RespondError(w, ErrorStatus(err), err.Error())
}

func (h *Handler) orchestrator(w http.ResponseWriter, r *http.Request) (*concierge.Orchestrator, bool) {
	orch, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondErr(w, err)
		return nil, false
	}
	return orch, true
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
		Language  string `json:"language"`
	}
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), payload.PersonaID, payload.Language)
	if err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessions.List())
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, orch.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGreet(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), greetTimeout)
	defer cancel()
	if err := orch.Greet(ctx); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]any{"state": orch.State()})
}

// handleSendMessage 提交一轮对话，回复通过事件流推送
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := orch.Submit(r.Context(), payload.Text); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]any{"state": orch.State()})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, orch.History())
}

func (h *Handler) handleMute(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Muted *bool `json:"muted"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil || payload.Muted == nil {
		utils.RespondError(w, http.StatusBadRequest, "muted is required")
		return
	}
	orch.SetMuted(*payload.Muted)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"muted": *payload.Muted})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	orch.StopAudio()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	orch.Replay()
	w.WriteHeader(http.StatusNoContent)
}

// handleAudio 以 WAV 返回最近一次回复的音频
func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	pcm, ok := orch.LastAudio()
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "no audio for the last reply")
		return
	}
	wav := playback.EncodeWAV(pcm, h.sampleRate)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// VideoPath is the route, relative to where RegisterRoutes mounts, serving
// the selected concept's video of a session.
func VideoPath(sessionID string) string {
	return "/sessions/" + url.PathEscape(sessionID) + "/video"
}

// handleVideo 代理下载需要凭据的视频，密钥不出服务端。
func (h *Handler) handleVideo(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	data, mimeType, err := orch.Video(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

func (h *Handler) handleSelectConcept(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "concept index must be a number")
		return
	}
	if err := orch.SelectConcept(r.Context(), index); err != nil {
		respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, orch.Snapshot().Visual)
}

func (h *Handler) handleDismissError(w http.ResponseWriter, r *http.Request) {
	orch, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	orch.DismissError()
	w.WriteHeader(http.StatusNoContent)
}
