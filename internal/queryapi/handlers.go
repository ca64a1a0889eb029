package queryapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dbaudit/collector/internal/logging"
	"github.com/dbaudit/collector/internal/metrics"
	"github.com/dbaudit/collector/internal/query"
)

// parseWindow reads the start/end query parameters as RFC3339 timestamps,
// defaulting to the last 24 hours when absent (the teacher's own audit
// query handler default).
func parseWindow(r *http.Request) (begin, end int64, err error) {
	q := r.URL.Query()
	now := time.Now()
	endT := now
	beginT := now.Add(-24 * time.Hour)

	if s := q.Get("start"); s != "" {
		beginT, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, 0, err
		}
	}
	if s := q.Get("end"); s != "" {
		endT, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, 0, err
		}
	}
	return beginT.Unix(), endT.Unix(), nil
}

// handleQuery serves GET /api/audit?start=&end=, returning every live
// record whose timestamp falls in [start, end).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	begin, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start/end: "+err.Error())
		return
	}

	rows, err := query.Query(s.dir, begin, end)
	metrics.Get().RecordQuery("query", err, time.Since(start).Seconds())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Rows  []query.Row `json:"rows"`
		Count int         `json:"count"`
	}{Rows: rows, Count: len(rows)})
}

// handleDelete serves DELETE /api/audit?start=&end=, soft-deleting every
// live record in the window (never touching the currently-open file) and
// reporting how many records were flagged.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	begin, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start/end: "+err.Error())
		return
	}

	n, err := query.Delete(s.dir, begin, end)
	metrics.Get().RecordQuery("delete", err, time.Since(start).Seconds())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Deleted int `json:"deleted"`
	}{Deleted: n})
}

// handleDebugLog serves GET /debug/log?n=, returning the most recent lines
// of the in-process application log tail (internal/logging's ring buffer) —
// useful for a collectord running detached under internal/supervisor, where
// there is no attached terminal to watch stderr on. n defaults to the full
// buffer when absent or invalid.
func (s *Server) handleDebugLog(w http.ResponseWriter, r *http.Request) {
	buf := logging.GetAppLogBuffer()

	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	var entries []logging.AppLogEntry
	if err != nil || n <= 0 {
		entries = buf.GetAll()
	} else {
		entries = buf.GetLast(n)
	}

	writeJSON(w, http.StatusOK, struct {
		Entries []logging.AppLogEntry `json:"entries"`
		Count   int                   `json:"count"`
	}{Entries: entries, Count: len(entries)})
}

