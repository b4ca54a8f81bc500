package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/trace"
)

// squashRoute is the path prefix the squash handler is mounted under.
const squashRoute = "/v1/squash/"

// defaultDeltaColumn names the duration column added when the event does
// not already carry one.
const defaultDeltaColumn = "delta"

// SquashHandler handles GET /v1/squash/{name} requests. The required
// "start" and "end" parameters bound the window; "col" overrides the
// duration column name.
type SquashHandler struct {
	trace *trace.Trace
	stats *observability.LoadStats
}

// NewSquashHandler creates a new squash handler.
func NewSquashHandler(tr *trace.Trace, stats *observability.LoadStats) *SquashHandler {
	return &SquashHandler{
		trace: tr,
		stats: stats,
	}
}

// ServeHTTP handles the squash HTTP request.
func (h *SquashHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, squashRoute), "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "event name is required", requestID)
		return
	}

	q := r.URL.Query()
	start, err := strconv.ParseFloat(q.Get("start"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be a number", requestID)
		return
	}
	end, err := strconv.ParseFloat(q.Get("end"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be a number", requestID)
		return
	}
	col := q.Get("col")
	if col == "" {
		col = defaultDeltaColumn
	}

	out, err := h.trace.SquashEvent(name, start, end, col)
	if err != nil {
		writeTraceError(w, err, requestID)
		return
	}

	if h.stats != nil {
		h.stats.RecordAccess(name, "squash", out.Len())
	}

	columns, rows := tableRows(out)
	writeJSON(w, http.StatusOK, TableResponse{
		Event:     name,
		Columns:   columns,
		Rows:      rows,
		Total:     out.Len(),
		RequestID: requestID,
	})
}
