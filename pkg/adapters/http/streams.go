package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
)

// Message is one event published to a session's subscribers.
type Message struct {
	Type domain.EventType
	Data string
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Message]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Message]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a listener for one session. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- Message]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
			close(ch)
		})
	}
}

// Broadcast publishes an event to every subscriber of its session.
func (sm *StreamManager) Broadcast(sessionID string, eventType domain.EventType, event any) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs, ok := sm.subscribers[sessionID]
	if !ok {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		sm.logger.Error("SSE: event encode failed", "session_id", sessionID, "err", err)
		return
	}
	msg := Message{Type: eventType, Data: string(data)}
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// Hooks returns lifecycle hooks that publish every session event to its subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepChange: func(_ context.Context, e *domain.StepEvent) {
			sm.Broadcast(e.SessionID, e.Type, e)
		},
		OnStepComplete: func(_ context.Context, e *domain.CompletionEvent) {
			sm.Broadcast(e.SessionID, e.Type, e)
		},
		OnStepUnavailable: func(_ context.Context, e *domain.StepEvent) {
			sm.Broadcast(e.SessionID, e.Type, e)
		},
		OnContextCommitted: func(_ context.Context, e *domain.CommitEvent) {
			sm.Broadcast(e.SessionID, e.Type, e)
		},
		OnProfileChange: func(_ context.Context, e *domain.ProfileEvent) {
			sm.Broadcast(e.SessionID, e.Type, e)
		},
	}
}
