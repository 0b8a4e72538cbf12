// Package sse provides a Server-Sent Events handler for streaming
// firing records to HTTP clients. It replays stored records from the
// journal and then follows live firings via the feed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/petal-labs/namewatch/journal"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// Handler serves an SSE stream of firing records for a watched name.
// Stored records are replayed first, then live records follow.
// Records already sent during replay are deduplicated by ID.
//
// The handler expects a "name" path value (Go 1.22+ ServeMux) and an
// optional "limit" query parameter capping the replay.
//
// SSE format:
//
//	id: {record id}
//	event: name.lost
//	data: {json}
//
// A heartbeat comment ": ping\n\n" is sent every 15 seconds. The
// stream stays open until the client disconnects.
type Handler struct {
	journal journal.Journal
	feed    *journal.Feed
}

// NewHandler creates a Handler over the given journal and feed.
func NewHandler(j journal.Journal, feed *journal.Feed) *Handler {
	return &Handler{
		journal: j,
		feed:    feed,
	}
}

// ServeHTTP implements http.Handler. It streams firing records for the
// name identified by the "name" path value.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()

	// Subscribe before replaying so records arriving between replay
	// and subscription are not lost.
	sub := h.feed.Subscribe(name)
	defer sub.Close()

	stored, err := h.journal.List(ctx, name, limit)
	if err != nil {
		return
	}

	sent := make(map[string]struct{}, len(stored))
	for _, rec := range stored {
		if ctx.Err() != nil {
			return
		}
		if err := writeRecord(w, rec); err != nil {
			return
		}
		flusher.Flush()
		sent[rec.ID] = struct{}{}
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case rec, ok := <-sub.Records():
			if !ok {
				// Feed closed.
				return
			}
			if _, dup := sent[rec.ID]; dup {
				continue
			}
			if err := writeRecord(w, rec); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeRecord writes a single record in SSE format.
func writeRecord(w http.ResponseWriter, rec journal.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: name.lost\ndata: %s\n\n", rec.ID, data)
	return err
}
