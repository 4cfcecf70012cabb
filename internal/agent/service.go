package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/walletpilot/server/internal/agent/graph"
	"github.com/walletpilot/server/internal/agent/model"
	logx "github.com/walletpilot/server/pkg/logger"
)

// Service serializes turns per conversation on top of the compiled agent graph.
// Two turns for the same conversation never interleave; turns for different
// conversations run concurrently.
type Service struct {
	runner graph.Runner
	repo   model.ConversationRepository

	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	sync.Mutex
	refs int
}

func NewService(runner graph.Runner, repo model.ConversationRepository) *Service {
	return &Service{
		runner: runner,
		repo:   repo,
		locks:  make(map[string]*conversationLock),
	}
}

// RunTurn executes one full dialogue turn and returns the agent's final reply.
func (s *Service) RunTurn(ctx context.Context, conversationID, message string) (string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return "", fmt.Errorf("conversation id is empty")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message is empty")
	}

	lock := s.acquire(conversationID)
	lock.Lock()
	defer func() {
		lock.Unlock()
		s.release(conversationID)
	}()

	reply, err := s.runner.Invoke(ctx, model.QueryInput{
		ConversationID: conversationID,
		Query:          message,
	})
	if err != nil {
		logx.Error().
			Str("conversation_id", conversationID).
			Err(err).
			Msg("Turn execution failed")
		return "", err
	}
	return reply, nil
}

// ClearHistory drops the stored message log for a conversation.
func (s *Service) ClearHistory(ctx context.Context, conversationID string) error {
	lock := s.acquire(conversationID)
	lock.Lock()
	defer func() {
		lock.Unlock()
		s.release(conversationID)
	}()

	return s.repo.ClearHistory(ctx, conversationID)
}

// acquire returns the lock for a conversation, creating it on first use.
// Refcounting keeps the map from growing without bound across many sessions.
func (s *Service) acquire(conversationID string) *conversationLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[conversationID]
	if !ok {
		l = &conversationLock{}
		s.locks[conversationID] = l
	}
	l.refs++
	return l
}

func (s *Service) release(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[conversationID]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, conversationID)
	}
}
