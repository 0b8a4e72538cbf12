// Package journal persists and distributes firing records: one record
// per watched name that lost its bus owner. Records can be replayed
// from a store (memory or SQLite) and streamed live through a Feed.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one observed ownership loss.
type Record struct {
	// ID is a unique record identifier.
	ID string `json:"id"`

	// Name is the bus name that lost its owner.
	Name string `json:"name"`

	// OldOwner is the unique connection name that held the bus name.
	OldOwner string `json:"old_owner,omitempty"`

	// Callbacks is the number of callbacks invoked by the firing.
	Callbacks int `json:"callbacks"`

	// FiredAt is when the loss was observed.
	FiredAt time.Time `json:"fired_at"`
}

// NewRecord creates a Record with a fresh ID, stamped now.
func NewRecord(name, oldOwner string, callbacks int) Record {
	return Record{
		ID:        uuid.NewString(),
		Name:      name,
		OldOwner:  oldOwner,
		Callbacks: callbacks,
		FiredAt:   time.Now().UTC(),
	}
}

// Journal persists firing records.
type Journal interface {
	// Append stores a record.
	Append(ctx context.Context, rec Record) error

	// List returns records for a name in firing order, oldest first.
	// An empty name returns records for all names. limit caps the
	// result (0 means no limit).
	List(ctx context.Context, name string, limit int) ([]Record, error)

	// Prune deletes records fired before the cutoff and returns how
	// many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
