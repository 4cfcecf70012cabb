package conversations

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletpilot/server/internal/agent/model"
)

// memoryRepo is an in-memory model.ConversationRepository.
type memoryRepo struct {
	logs map[string][]*schema.Message
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{logs: make(map[string][]*schema.Message)}
}

func (m *memoryRepo) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	m.logs[conversationID] = append(m.logs[conversationID], message)
	return nil
}

func (m *memoryRepo) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{
		ConversationID: conversationID,
		Messages:       m.logs[conversationID],
	}, nil
}

func (m *memoryRepo) ClearHistory(ctx context.Context, conversationID string) error {
	delete(m.logs, conversationID)
	return nil
}

func (m *memoryRepo) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	return len(m.logs[conversationID]), nil
}

func newManager(repo model.ConversationRepository, maxTurns int) *MessagesManager {
	cfg := model.ConversationConfig{}
	cfg.History.MaxTurns = maxTurns
	return NewMessagesManager(repo, cfg)
}

func TestBuildContextPrependsSystemPrompt(t *testing.T) {
	repo := newMemoryRepo()
	mm := newManager(repo, 40)
	ctx := context.Background()

	require.NoError(t, mm.AppendUserMessage(ctx, "c1", "hello"))
	messages, err := mm.BuildContext(ctx, "c1", "you are a wallet assistant")
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, "you are a wallet assistant", messages[0].Content)
	assert.Equal(t, schema.User, messages[1].Role)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestBuildContextWindowsHistoryTail(t *testing.T) {
	repo := newMemoryRepo()
	mm := newManager(repo, 4)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, mm.AppendUserMessage(ctx, "c1", fmt.Sprintf("msg-%d", i)))
	}

	messages, err := mm.BuildContext(ctx, "c1", "sys")
	require.NoError(t, err)

	// System prompt plus the newest 4 messages; the stored log keeps all 10.
	require.Len(t, messages, 5)
	assert.Equal(t, "msg-6", messages[1].Content)
	assert.Equal(t, "msg-9", messages[4].Content)

	count, err := repo.GetMessageCount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestSaveResponseAppendsAssistantMessage(t *testing.T) {
	repo := newMemoryRepo()
	mm := newManager(repo, 40)
	ctx := context.Background()

	require.NoError(t, mm.AppendUserMessage(ctx, "c1", "hi"))
	require.NoError(t, mm.SaveResponse(ctx, "c1", "hello there"))

	history, err := repo.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, schema.Assistant, history.Messages[1].Role)
	assert.Equal(t, "hello there", history.Messages[1].Content)
}

func TestClearHistory(t *testing.T) {
	repo := newMemoryRepo()
	mm := newManager(repo, 40)
	ctx := context.Background()

	require.NoError(t, mm.AppendUserMessage(ctx, "c1", "hi"))
	require.NoError(t, mm.ClearHistory(ctx, "c1"))

	count, err := repo.GetMessageCount(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTrimTailKeepsAllWhenDisabled(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("a"),
		schema.UserMessage("b"),
	}
	assert.Len(t, trimTail(msgs, 0), 2)
	assert.Len(t, trimTail(msgs, -1), 2)
	assert.Len(t, trimTail(msgs, 5), 2)
	assert.Len(t, trimTail(msgs, 1), 1)
}
