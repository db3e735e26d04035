package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
)

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]map[uuid.UUID]model.PresenceEntry // conversation -> user -> entry
	window  time.Duration
}

func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultStaleAfter
	}
	return &MemoryStore{
		entries: make(map[uuid.UUID]map[uuid.UUID]model.PresenceEntry),
		window:  window,
	}
}

func (s *MemoryStore) Set(_ context.Context, entry model.PresenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.entries[entry.ConversationID]
	if !ok {
		conv = make(map[uuid.UUID]model.PresenceEntry)
		s.entries[entry.ConversationID] = conv
	}
	conv[entry.UserID] = entry
	return nil
}

func (s *MemoryStore) Active(_ context.Context, conversationID, excludeUserID uuid.UUID, now time.Time) ([]model.PresenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.entries[conversationID]
	entries := make([]model.PresenceEntry, 0, len(conv))
	for _, e := range conv {
		entries = append(entries, e)
	}
	return filterActive(entries, excludeUserID, now, s.window), nil
}
