package transport

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	logx "github.com/walletpilot/server/pkg/logger"
)

// OutboundMessage is the frame pushed to connected clients for
// agent-initiated messages (background action results).
type OutboundMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Hub tracks live websocket connections per conversation so the
// scheduler can push agent-initiated messages back to clients.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *Hub) Register(conversationID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[conversationID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[conversationID] = set
	}
	set[ws] = struct{}{}
}

func (h *Hub) Unregister(conversationID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[conversationID]
	if !ok {
		return
	}
	delete(set, ws)
	if len(set) == 0 {
		delete(h.conns, conversationID)
	}
}

// SendMessage delivers text to every live connection for the conversation.
// A conversation with no connections is not an error; the message is dropped.
func (h *Hub) SendMessage(ctx context.Context, conversationID, text string) error {
	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns[conversationID]))
	for ws := range h.conns[conversationID] {
		targets = append(targets, ws)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		logx.Debug().
			Str("conversation_id", conversationID).
			Msg("No live connection for outbound message; dropping")
		return nil
	}

	frame := OutboundMessage{
		Type:           "agent_message",
		ConversationID: conversationID,
		Text:           text,
	}
	for _, ws := range targets {
		if err := wsjson.Write(ctx, ws, frame); err != nil {
			logx.Debug().
				Str("conversation_id", conversationID).
				Err(err).
				Msg("Outbound websocket write failed")
		}
	}
	return nil
}
