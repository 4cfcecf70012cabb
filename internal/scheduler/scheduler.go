package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "github.com/walletpilot/server/pkg/logger"
)

// TurnRunner runs one dialogue turn for a conversation and returns the final
// reply text.
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID, message string) (string, error)
}

// Outbound delivers agent text to a conversation endpoint without a waiting
// user.
type Outbound interface {
	SendMessage(ctx context.Context, conversationID, text string) error
}

type action struct {
	description string
	interval    time.Duration
	cancel      context.CancelFunc
}

// Registry owns the repeating background actions, at most one per
// conversation. Starting a new action replaces any prior one; stopping is
// idempotent. The registry is created at startup and drained at shutdown.
type Registry struct {
	outbound Outbound

	mu      sync.Mutex
	runner  TurnRunner
	actions map[string]*action
	wg      sync.WaitGroup
	closed  bool
}

func NewRegistry(runner TurnRunner, outbound Outbound) *Registry {
	return &Registry{
		runner:   runner,
		outbound: outbound,
		actions:  make(map[string]*action),
	}
}

// SetRunner wires the turn runner after construction. The registry handle is
// needed by the agent's tools before the agent itself exists, so startup sets
// the runner once the graph is built.
func (r *Registry) SetRunner(runner TurnRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runner = runner
}

// Start registers a repeating action for the conversation. An existing action
// is cancelled first; its in-flight firing, if any, is left to finish but no
// further firings occur.
func (r *Registry) Start(conversationID, description string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("scheduler is shut down")
	}

	if prev, ok := r.actions[conversationID]; ok {
		prev.cancel()
		logx.Debug().Str("conversation_id", conversationID).Msg("Replacing existing background action")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &action{description: description, interval: interval, cancel: cancel}
	r.actions[conversationID] = a

	r.wg.Add(1)
	go r.run(ctx, conversationID, a)

	logx.Info().
		Str("conversation_id", conversationID).
		Dur("interval", interval).
		Msg("Background action started")
	return nil
}

// Stop cancels and removes the conversation's action. Calling it with no
// active action is a no-op; the boolean reports whether one existed.
func (r *Registry) Stop(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[conversationID]
	if !ok {
		return false
	}
	a.cancel()
	delete(r.actions, conversationID)

	logx.Info().Str("conversation_id", conversationID).Msg("Background action stopped")
	return true
}

// Active reports whether the conversation currently has an action registered.
func (r *Registry) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.actions[conversationID]
	return ok
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// Shutdown cancels every action and waits for their goroutines to drain, or
// until the context expires.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for id, a := range r.actions {
		a.cancel()
		delete(r.actions, id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) run(ctx context.Context, conversationID string, a *action) {
	defer r.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.fire(ctx, conversationID, a.description)
		}
	}
}

// fire runs one synthetic dialogue turn and pushes the reply out.
func (r *Registry) fire(ctx context.Context, conversationID, description string) {
	r.mu.Lock()
	runner := r.runner
	r.mu.Unlock()
	if runner == nil {
		logx.Warn().Str("conversation_id", conversationID).Msg("Background action fired before runner was wired")
		return
	}

	reply, err := runner.RunTurn(ctx, conversationID, description)
	if err != nil {
		logx.Error().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("Background action turn failed")
		return
	}
	if reply == "" {
		return
	}
	if err := r.outbound.SendMessage(ctx, conversationID, reply); err != nil {
		logx.Error().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("Failed to deliver background action reply")
	}
}
