// Package live 通过 WebSocket 双向推送会话事件与控制指令。
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mion-onsen/concierge/backend/internal/observability"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	greetTimeout = time.Minute

	// DefaultRate 每秒允许的入站消息数。
	DefaultRate  rate.Limit = 5
	DefaultBurst            = 10
)

// Sessions resolves a session's orchestrator.
type Sessions interface {
	Get(sessionID string) (*concierge.Orchestrator, error)
}

// Handler WebSocket会话处理器
type Handler struct {
	sessions Sessions
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

// New 创建WebSocket处理器
func New(sessions Sessions, metrics *observability.Metrics) *Handler {
	return &Handler{
		sessions: sessions,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		limit: DefaultRate,
		burst: DefaultBurst,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorData is the payload of outbound "error" messages.
type ErrorData struct {
	Message string `json:"message"`
}

type textData struct {
	Text string `json:"text"`
}

type muteData struct {
	Muted bool `json:"muted"`
}

type selectData struct {
	Index int `json:"index"`
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	metrics   *observability.Metrics

	mu sync.Mutex
}

func (c *conn) send(typ string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{Type: typ, SessionID: c.sessionID, Data: data, Timestamp: time.Now().UnixMilli()}
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", typ, err)
		return
	}
	c.metrics.WSMessage("out", typ)
}

func (c *conn) sendError(message string) {
	c.send("error", ErrorData{Message: message})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	orch, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	log.Printf("[websocket] new connection for session: %s", sessionID)

	c := &conn{ws: ws, sessionID: sessionID, metrics: h.metrics}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	c.send("connected", orch.Snapshot())
	go h.forward(ctx, c, events)
	go h.pingLoop(ctx, c)

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		h.metrics.WSMessage("in", inboundLabel(msg.Type))

		if !limiter.Allow() {
			c.sendError("rate limit exceeded")
			continue
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			continue
		}
		h.handleMessage(ctx, c, orch, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, orch *concierge.Orchestrator, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var data textData
		if err := decode(msg.Data, &data); err != nil {
			c.sendError("invalid text payload")
			return
		}
		if err := orch.Submit(ctx, data.Text); err != nil {
			c.sendError(err.Error())
		}
	case "greet":
		go func() {
			greetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), greetTimeout)
			defer cancel()
			if err := orch.Greet(greetCtx); err != nil && !errors.Is(err, concierge.ErrClosed) {
				c.sendError(err.Error())
			}
		}()
	case "mute":
		var data muteData
		if err := decode(msg.Data, &data); err != nil {
			c.sendError("invalid mute payload")
			return
		}
		orch.SetMuted(data.Muted)
		c.send("muted", data)
	case "stop":
		orch.StopAudio()
	case "replay":
		orch.Replay()
	case "select":
		var data selectData
		if err := decode(msg.Data, &data); err != nil {
			c.sendError("invalid select payload")
			return
		}
		if err := orch.SelectConcept(ctx, data.Index); err != nil {
			c.sendError(err.Error())
		}
	case "dismiss":
		orch.DismissError()
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// inboundTypes is the closed label set for inbound message metrics.
var inboundTypes = map[string]bool{
	"text": true, "greet": true, "mute": true, "stop": true,
	"replay": true, "select": true, "dismiss": true,
}

func inboundLabel(typ string) string {
	if inboundTypes[typ] {
		return typ
	}
	return "unknown"
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(raw, v)
}

// forward relays orchestrator events until the session closes.
func (h *Handler) forward(ctx context.Context, c *conn, events <-chan concierge.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.send("closed", nil)
				c.mu.Lock()
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				c.mu.Unlock()
				return
			}
			c.send(string(ev.Type), ev.Data)
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Printf("[websocket] ping failed: %v", err)
				return
			}
		}
	}
}
