package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletpilot/server/internal/agent/model"
)

// slowRunner counts concurrent invocations per conversation to expose
// interleaving.
type slowRunner struct {
	mu         sync.Mutex
	inFlight   map[string]int
	maxByConv  map[string]int
	totalCalls atomic.Int64
	delay      time.Duration
}

func newSlowRunner(delay time.Duration) *slowRunner {
	return &slowRunner{
		inFlight:  make(map[string]int),
		maxByConv: make(map[string]int),
		delay:     delay,
	}
}

func (r *slowRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	r.mu.Lock()
	r.inFlight[in.ConversationID]++
	if r.inFlight[in.ConversationID] > r.maxByConv[in.ConversationID] {
		r.maxByConv[in.ConversationID] = r.inFlight[in.ConversationID]
	}
	r.mu.Unlock()

	time.Sleep(r.delay)
	r.totalCalls.Add(1)

	r.mu.Lock()
	r.inFlight[in.ConversationID]--
	r.mu.Unlock()
	return "reply to " + in.Query, nil
}

func (r *slowRunner) maxConcurrent(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxByConv[conversationID]
}

type noopRepo struct {
	cleared []string
}

func (n *noopRepo) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	return nil
}

func (n *noopRepo) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{ConversationID: conversationID}, nil
}

func (n *noopRepo) ClearHistory(ctx context.Context, conversationID string) error {
	n.cleared = append(n.cleared, conversationID)
	return nil
}

func (n *noopRepo) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	return 0, nil
}

func TestRunTurnValidatesInput(t *testing.T) {
	svc := NewService(newSlowRunner(0), &noopRepo{})

	_, err := svc.RunTurn(context.Background(), "", "hi")
	assert.Error(t, err)

	_, err = svc.RunTurn(context.Background(), "c1", "   ")
	assert.Error(t, err)
}

func TestRunTurnReturnsReply(t *testing.T) {
	svc := NewService(newSlowRunner(0), &noopRepo{})
	reply, err := svc.RunTurn(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply to hello", reply)
}

func TestTurnsForSameConversationNeverInterleave(t *testing.T) {
	runner := newSlowRunner(10 * time.Millisecond)
	svc := NewService(runner, &noopRepo{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RunTurn(context.Background(), "same", "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, runner.maxConcurrent("same"))
	assert.EqualValues(t, 8, runner.totalCalls.Load())
}

func TestDifferentConversationsRunConcurrently(t *testing.T) {
	runner := newSlowRunner(50 * time.Millisecond)
	svc := NewService(runner, &noopRepo{})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		id := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_, err := svc.RunTurn(context.Background(), id, "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serial execution would take at least 200ms.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestLockMapDoesNotLeak(t *testing.T) {
	svc := NewService(newSlowRunner(0), &noopRepo{})
	for i := 0; i < 100; i++ {
		_, err := svc.RunTurn(context.Background(), "conv", "ping")
		require.NoError(t, err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.locks)
}

func TestClearHistoryDelegates(t *testing.T) {
	repo := &noopRepo{}
	svc := NewService(newSlowRunner(0), repo)

	require.NoError(t, svc.ClearHistory(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, repo.cleared)
}
