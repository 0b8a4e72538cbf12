package journal

import (
	"context"
	"log/slog"

	"github.com/petal-labs/namewatch/watch"
)

// Recorder turns watcher events into journal records. Ownership
// losses are appended to the journal and published to the feed; other
// event kinds are ignored. Use it as a watch.EventEmitter.
type Recorder struct {
	journal Journal
	feed    *Feed
	logger  *slog.Logger
}

// NewRecorder creates a Recorder. The feed is optional.
func NewRecorder(j Journal, feed *Feed, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		journal: j,
		feed:    feed,
		logger:  logger,
	}
}

// Handle persists a name-loss event. Persistence failures are logged,
// never propagated into the dispatch path.
func (r *Recorder) Handle(e watch.Event) {
	if e.Kind != watch.EventNameLost {
		return
	}

	rec := NewRecord(e.Name, e.OldOwner, e.Count)
	rec.FiredAt = e.Time.UTC()

	if err := r.journal.Append(context.Background(), rec); err != nil {
		r.logger.Error("failed to persist firing record",
			"name", e.Name,
			"old_owner", e.OldOwner,
			"error", err,
		)
	}
	if r.feed != nil {
		r.feed.Publish(rec)
	}
}
