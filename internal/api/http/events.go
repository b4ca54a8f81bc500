package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/trace"
)

// eventsRoute is the path prefix the events handler is mounted under.
const eventsRoute = "/v1/events"

// EventListResponse lists the event names known to the trace.
type EventListResponse struct {
	Events    []string `json:"events"`
	RequestID string   `json:"request_id"`
}

// TableResponse carries one event table row-major. The first column is
// always the record timestamp. Total counts the rows before any filter
// or limit was applied.
type TableResponse struct {
	Event     string          `json:"event"`
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Total     int             `json:"total"`
	RequestID string          `json:"request_id"`
}

// EventsHandler handles GET /v1/events and GET /v1/events/{name} requests.
// The list accepts an optional "match" substring; fetches accept "where"
// (a row filter expression over the table's columns) and "limit".
type EventsHandler struct {
	trace *trace.Trace
	stats *observability.LoadStats
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(tr *trace.Trace, stats *observability.LoadStats) *EventsHandler {
	return &EventsHandler{
		trace: tr,
		stats: stats,
	}
}

// ServeHTTP handles the events HTTP request.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, eventsRoute), "/")
	if name == "" {
		h.serveList(w, r, requestID)
		return
	}
	h.serveTable(w, r, name, requestID)
}

// serveList writes the available event names, narrowed to those
// containing the "match" substring when one is given.
func (h *EventsHandler) serveList(w http.ResponseWriter, r *http.Request, requestID string) {
	var events []string
	if match := r.URL.Query().Get("match"); match != "" {
		events = h.trace.Names(match)
	} else {
		events = h.trace.Available()
	}
	if events == nil {
		events = []string{}
	}

	writeJSON(w, http.StatusOK, EventListResponse{
		Events:    events,
		RequestID: requestID,
	})
}

// serveTable writes the named event table, filtered and truncated per the
// query parameters.
func (h *EventsHandler) serveTable(w http.ResponseWriter, r *http.Request, name, requestID string) {
	t, err := h.trace.Get(name)
	if err != nil {
		writeTraceError(w, err, requestID)
		return
	}
	total := t.Len()

	q := r.URL.Query()
	if where := q.Get("where"); where != "" {
		t, err = trace.Filter(t, where)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid filter: %v", err), requestID)
			return
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", requestID)
			return
		}
		if limit < t.Len() {
			t = t.Slice(0, limit)
		}
	}

	if h.stats != nil {
		h.stats.RecordAccess(name, "events", t.Len())
	}

	columns, rows := tableRows(t)
	writeJSON(w, http.StatusOK, TableResponse{
		Event:     name,
		Columns:   columns,
		Rows:      rows,
		Total:     total,
		RequestID: requestID,
	})
}

// tableRows flattens a table into a column header and row-major values,
// the timestamp leading each row.
func tableRows(t *trace.Table) ([]string, [][]interface{}) {
	cols := t.Columns()
	columns := make([]string, 0, len(cols)+1)
	columns = append(columns, "ts")
	for _, col := range cols {
		columns = append(columns, col.Name())
	}

	rows := make([][]interface{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := make([]interface{}, 0, len(cols)+1)
		row = append(row, t.Time(i))
		for _, col := range cols {
			row = append(row, col.Value(i))
		}
		rows[i] = row
	}
	return columns, rows
}
