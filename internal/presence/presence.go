// Package presence keeps the transient typing/recording state of users per conversation.
//
// Entries are never expired by the server. Staleness is applied when reading:
// an entry older than the window reads as idle whatever its stored state.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
)

// DefaultStaleAfter is how long a typing/recording entry stays active without a refresh
const DefaultStaleAfter = 5 * time.Second

// Store is a last-write-wins map keyed by (user, conversation)
type Store interface {
	Set(ctx context.Context, entry model.PresenceEntry) error
	Active(ctx context.Context, conversationID, excludeUserID uuid.UUID, now time.Time) ([]model.PresenceEntry, error)
}

// IsActive reports whether an entry counts as live activity at now
func IsActive(e model.PresenceEntry, now time.Time, window time.Duration) bool {
	return e.State != model.PresenceIdle && now.Sub(e.LastUpdated) < window
}

func filterActive(entries []model.PresenceEntry, excludeUserID uuid.UUID, now time.Time, window time.Duration) []model.PresenceEntry {
	active := []model.PresenceEntry{}
	for _, e := range entries {
		if e.UserID == excludeUserID || !IsActive(e, now, window) {
			continue
		}
		active = append(active, e)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastUpdated.Before(active[j].LastUpdated)
	})
	return active
}
