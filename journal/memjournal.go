package journal

import (
	"context"
	"sync"
	"time"
)

// MemJournal is a thread-safe in-memory journal.
type MemJournal struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemJournal creates an empty in-memory journal.
func NewMemJournal() *MemJournal {
	return &MemJournal{}
}

func (j *MemJournal) Append(_ context.Context, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *MemJournal) List(_ context.Context, name string, limit int) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []Record
	for _, rec := range j.records {
		if name != "" && rec.Name != name {
			continue
		}
		result = append(result, rec)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (j *MemJournal) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.records[:0]
	var removed int64
	for _, rec := range j.records {
		if rec.FiredAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	j.records = kept
	return removed, nil
}

// Compile-time interface check.
var _ Journal = (*MemJournal)(nil)
