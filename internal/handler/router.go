package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mion-onsen/concierge/backend/internal/handler/chat"
	"github.com/mion-onsen/concierge/backend/internal/handler/live"
	"github.com/mion-onsen/concierge/backend/internal/handler/persona"
	"github.com/mion-onsen/concierge/backend/internal/handler/stream"
	personaModel "github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/observability"
	chatService "github.com/mion-onsen/concierge/backend/internal/service/chat"
	"github.com/mion-onsen/concierge/backend/pkg/utils"
)

// APIPrefix is where the session API is mounted.
const APIPrefix = "/api"

// VideoPath is the public route serving a session's video.
func VideoPath(sessionID string) string {
	return APIPrefix + chat.VideoPath(sessionID)
}

// Deps 是路由所需的核心服务。
type Deps struct {
	Personas   personaModel.Store
	Sessions   *chatService.Service
	Metrics    *observability.Metrics
	SampleRate int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": len(deps.Sessions.List()),
		})
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route(APIPrefix, func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		chat.New(deps.Sessions, deps.SampleRate).RegisterRoutes(api)
		stream.New(deps.Sessions).RegisterRoutes(api)
		live.New(deps.Sessions, deps.Metrics).RegisterRoutes(api)
	})

	return r
}

// cors 允许浏览器前端跨域调用。
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
