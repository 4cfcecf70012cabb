package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ConversationRepository is the durable, append-only message log backing a
// conversation. Implementations key everything by the conversation ID.
type ConversationRepository interface {
	// AddMessage appends one message to the conversation's log.
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// LoadHistory returns the full ordered log for a conversation.
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory drops the conversation's log entirely.
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount reports how many messages the log currently holds.
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ConversationHistory is a loaded log plus the ID it belongs to.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}
