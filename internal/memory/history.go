// Package memory persists collaboration history across pipeline runs,
// keyed by conversation ID. Within a single run the pipeline threads its
// own state; this store is what lets a later request's personas see what
// earlier requests' personas said.
package memory

import (
	"context"
	"sync"

	"github.com/castmind/castmind/internal/pipeline"
)

// historyCap bounds how many turns are retained per conversation.
const historyCap = 50

// Store records and recalls collaboration turns per conversation.
type Store interface {
	Recent(ctx context.Context, conversationID string, n int) ([]pipeline.CollabTurn, error)
	Append(ctx context.Context, conversationID string, turns []pipeline.CollabTurn) error
}

// InMemoryStore is the fallback when Redis is not configured. Safe for
// concurrent use.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]pipeline.CollabTurn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]pipeline.CollabTurn)}
}

func (s *InMemoryStore) Recent(_ context.Context, conversationID string, n int) ([]pipeline.CollabTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[conversationID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	return append([]pipeline.CollabTurn(nil), turns...), nil
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, turns []pipeline.CollabTurn) error {
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := append(s.turns[conversationID], turns...)
	if len(merged) > historyCap {
		merged = merged[len(merged)-historyCap:]
	}
	s.turns[conversationID] = merged

	return nil
}
