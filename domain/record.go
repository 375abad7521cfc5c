// Package domain defines the record model shared by the offline stores and the
// sync coordinator.
package domain

import (
	"encoding/json"
	"time"
)

// Collection identifies one of the locally persisted record collections.
type Collection string

const (
	CollectionWorkouts Collection = "workouts"
	CollectionProgress Collection = "progress"
)

// Collections lists every syncable collection in a stable order.
func Collections() []Collection {
	return []Collection{CollectionWorkouts, CollectionProgress}
}

// Record is a locally persisted, user-generated entry awaiting sync. Workouts
// and progress entries share this shape; the owning collection tells them apart.
type Record struct {
	// ID is assigned by the record store on append and is monotonic within a
	// collection.
	ID int64
	// IdempotencyKey is generated client-side on append so the remote API can
	// deduplicate repeated pushes of the same record.
	IdempotencyKey string
	// Payload is opaque to the offline core; the UI shell owns its schema.
	Payload   json.RawMessage
	CreatedAt time.Time
	Synced    bool
	SyncedAt  *time.Time
}

// ExerciseCatalogEntry is one row of the read-only exercise reference list.
// The catalog is fully replaced on refresh and carries no synced flag: it is
// not user-generated.
type ExerciseCatalogEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
