package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/namewatch/journal"
	"github.com/petal-labs/namewatch/sse"
)

// sseMessage represents a parsed SSE message from the stream.
type sseMessage struct {
	ID    string
	Event string
	Data  string
}

// parseSSEMessages reads SSE messages from the response body string.
func parseSSEMessages(body string) []sseMessage {
	var msgs []sseMessage
	scanner := bufio.NewScanner(strings.NewReader(body))

	var current sseMessage
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current.ID != "" || current.Event != "" || current.Data != "" {
				msgs = append(msgs, current)
				current = sseMessage{}
			}
			continue
		}
		if strings.HasPrefix(line, ": ") {
			// Heartbeat comment.
			continue
		}
		if strings.HasPrefix(line, "id: ") {
			current.ID = strings.TrimPrefix(line, "id: ")
		} else if strings.HasPrefix(line, "event: ") {
			current.Event = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			current.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	return msgs
}

// setupTestServer creates a test mux with the SSE handler registered.
func setupTestServer(j journal.Journal, feed *journal.Feed) *httptest.Server {
	handler := sse.NewHandler(j, feed)
	mux := http.NewServeMux()
	mux.Handle("GET /names/{name}/events", handler)
	return httptest.NewServer(mux)
}

func storedRecord(t *testing.T, j journal.Journal, name string, firedAt time.Time) journal.Record {
	t.Helper()
	rec := journal.NewRecord(name, ":1.42", 1)
	rec.FiredAt = firedAt
	if err := j.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return rec
}

func TestHandler_ReplayFromJournal(t *testing.T) {
	j := journal.NewMemJournal()
	feed := journal.NewFeed(journal.FeedConfig{})
	defer feed.Close()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	want := []journal.Record{
		storedRecord(t, j, "org.bluez", base),
		storedRecord(t, j, "org.bluez", base.Add(time.Minute)),
	}
	storedRecord(t, j, "org.other", base)

	server := setupTestServer(j, feed)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		server.URL+"/names/org.bluez/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	// Read until both replayed records arrive, then cancel.
	body := readStream(t, resp.Body, func(body string) bool {
		return strings.Count(body, "event: name.lost") >= 2
	})
	cancel()

	msgs := parseSSEMessages(body)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for i, msg := range msgs {
		if msg.ID != want[i].ID {
			t.Errorf("msg[%d].ID = %q, want %q", i, msg.ID, want[i].ID)
		}
		if msg.Event != "name.lost" {
			t.Errorf("msg[%d].Event = %q, want name.lost", i, msg.Event)
		}
		var rec journal.Record
		if err := json.Unmarshal([]byte(msg.Data), &rec); err != nil {
			t.Fatalf("msg[%d] data: %v", i, err)
		}
		if rec.Name != "org.bluez" {
			t.Errorf("msg[%d].Name = %q, want org.bluez", i, rec.Name)
		}
	}
}

func TestHandler_LiveRecords(t *testing.T) {
	j := journal.NewMemJournal()
	feed := journal.NewFeed(journal.FeedConfig{})
	defer feed.Close()

	server := setupTestServer(j, feed)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		server.URL+"/names/org.live/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	// Give the handler a moment to subscribe, then publish.
	go func() {
		time.Sleep(100 * time.Millisecond)
		feed.Publish(journal.NewRecord("org.live", ":1.5", 2))
	}()

	body := readStream(t, resp.Body, func(body string) bool {
		return strings.Contains(body, "event: name.lost")
	})
	cancel()

	msgs := parseSSEMessages(body)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	var rec journal.Record
	if err := json.Unmarshal([]byte(msgs[0].Data), &rec); err != nil {
		t.Fatalf("data: %v", err)
	}
	if rec.Name != "org.live" || rec.Callbacks != 2 {
		t.Errorf("record = %+v, want org.live with 2 callbacks", rec)
	}
}

func TestHandler_MissingName(t *testing.T) {
	j := journal.NewMemJournal()
	feed := journal.NewFeed(journal.FeedConfig{})
	defer feed.Close()

	handler := sse.NewHandler(j, feed)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandler_InvalidLimit(t *testing.T) {
	j := journal.NewMemJournal()
	feed := journal.NewFeed(journal.FeedConfig{})
	defer feed.Close()

	server := setupTestServer(j, feed)
	defer server.Close()

	resp, err := http.Get(server.URL + "/names/org.foo/events?limit=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// readStream accumulates the response body until done reports the
// accumulated text is sufficient or the body closes.
func readStream(t *testing.T, r io.Reader, done func(string) bool) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		sb.Write(buf[:n])
		if done(sb.String()) {
			return sb.String()
		}
		if err != nil {
			return sb.String()
		}
	}
}
