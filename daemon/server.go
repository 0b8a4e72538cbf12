package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/petal-labs/namewatch/journal"
)

const defaultFiringLimit = 100

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNames lists the names currently being watched.
func (d *Daemon) handleNames(w http.ResponseWriter, _ *http.Request) {
	names := d.watcher.WatchedNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

// handleFirings lists journaled firings in firing order, optionally
// scoped to one name via the path and capped via ?limit=.
func (d *Daemon) handleFirings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	limit := defaultFiringLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := d.journal.List(r.Context(), name, limit)
	if err != nil {
		d.logger.Error("journal list failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"firings": records})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
