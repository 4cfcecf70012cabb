package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	errx "github.com/walletpilot/server/internal/core/error"
	logx "github.com/walletpilot/server/pkg/logger"
)

// TurnService is the slice of the agent service the transport needs.
type TurnService interface {
	RunTurn(ctx context.Context, conversationID, message string) (string, error)
	ClearHistory(ctx context.Context, conversationID string) error
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker func(ctx context.Context) error

type Config struct {
	Addr        string `envconfig:"HTTP_ADDR" default:":8080"`
	TurnTimeout int    `envconfig:"HTTP_TURN_TIMEOUT_SECONDS" default:"120"`
}

// Handler serves the chat API: synchronous messages over HTTP and a
// websocket channel that also receives scheduler-initiated pushes.
type Handler struct {
	svc         TurnService
	hub         *Hub
	healthCheck HealthChecker
	turnTimeout time.Duration
}

func NewHandler(svc TurnService, hub *Hub, health HealthChecker, cfg Config) *Handler {
	timeout := time.Duration(cfg.TurnTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Handler{
		svc:         svc,
		hub:         hub,
		healthCheck: health,
		turnTimeout: timeout,
	}
}

// Router builds the chi router with the full route set.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/v1/conversations/{conversationID}", func(r chi.Router) {
		r.Post("/messages", h.handleMessage)
		r.Delete("/history", h.handleClearHistory)
		r.Get("/ws", h.handleWebsocket)
	})

	return r
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.turnTimeout)
	defer cancel()

	reply, err := h.svc.RunTurn(ctx, conversationID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Reply: reply})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.svc.ClearHistory(r.Context(), conversationID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.healthCheck != nil {
		if err := h.healthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type inboundFrame struct {
	Message string `json:"message"`
}

func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logx.Error().
			Str("conversation_id", conversationID).
			Err(err).
			Msg("Failed to accept websocket")
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	h.hub.Register(conversationID, ws)
	defer h.hub.Unregister(conversationID, ws)

	logx.Info().
		Str("conversation_id", conversationID).
		Msg("Websocket connected")

	for {
		var frame inboundFrame
		if err := wsjson.Read(r.Context(), ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return
			}
			logx.Debug().
				Str("conversation_id", conversationID).
				Err(err).
				Msg("Websocket read failed")
			return
		}
		if strings.TrimSpace(frame.Message) == "" {
			continue
		}

		turnCtx, cancel := context.WithTimeout(r.Context(), h.turnTimeout)
		reply, err := h.svc.RunTurn(turnCtx, conversationID, frame.Message)
		cancel()
		if err != nil {
			reply = errx.SystemErrorMessage
		}

		out := OutboundMessage{
			Type:           "agent_reply",
			ConversationID: conversationID,
			Text:           reply,
		}
		if err := wsjson.Write(r.Context(), ws, out); err != nil {
			return
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := errx.SystemErrorMessage

	var appErr *errx.Error
	if errors.As(err, &appErr) {
		if appErr.Status != 0 {
			status = appErr.Status
		}
		if appErr.Message != "" {
			message = appErr.Message
		}
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Debug().Err(err).Msg("Failed to encode response")
	}
}
