// Package conversation tracks each user's active multi-turn flow and
// drives it through an explicit transition table.
package conversation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/opsbot/internal/domain"
	"github.com/google/uuid"
)

// ErrStale is returned when an update targets a conversation that has been
// replaced or ended since it was read.
var ErrStale = errors.New("conversation replaced")

// Store holds at most one active conversation per user.
type Store struct {
	mu     sync.RWMutex
	active map[int64]domain.Conversation
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		active: make(map[int64]domain.Conversation),
		now:    time.Now,
		logger: logger,
	}
}

// Begin starts flow for the user, replacing any conversation in progress.
func (s *Store) Begin(userID int64, flow domain.Flow) domain.Conversation {
	conv := domain.Conversation{
		UserID:     userID,
		Flow:       flow,
		State:      domain.StateAwaitingText,
		Generation: uuid.NewString(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[userID]; ok {
		s.logger.Info("Conversation replaced", "user_id", userID, "flow", existing.Flow, "new_flow", flow)
	}
	conv.UpdatedAt = s.now()
	s.active[userID] = conv
	return conv.Clone()
}

// Get returns a copy of the user's active conversation.
func (s *Store) Get(userID int64) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.active[userID]
	if !ok {
		return domain.Conversation{}, false
	}
	return conv.Clone(), true
}

// Advance stores next if the user's conversation still has next's
// generation. A terminal state removes the conversation.
func (s *Store) Advance(next domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.active[next.UserID]
	if !ok || current.Generation != next.Generation {
		return ErrStale
	}
	if next.State == domain.StateTerminal {
		delete(s.active, next.UserID)
		return nil
	}
	next = next.Clone()
	next.UpdatedAt = s.now()
	s.active[next.UserID] = next
	return nil
}

// End removes the user's conversation if it still has generation.
func (s *Store) End(userID int64, generation string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.active[userID]
	if !ok || current.Generation != generation {
		return false
	}
	delete(s.active, userID)
	return true
}

// Expire removes and returns conversations idle for longer than ttl.
func (s *Store) Expire(ttl time.Duration) []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []domain.Conversation
	for userID, conv := range s.active {
		if conv.Idle(now) > ttl {
			expired = append(expired, conv)
			delete(s.active, userID)
		}
	}
	return expired
}

// Len returns the number of active conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}
