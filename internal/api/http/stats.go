package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/trace"
)

// FuncStatsResponse carries kernel function profiling rows, ordered by
// CPU and then by function name.
type FuncStatsResponse struct {
	Stats     []trace.FuncStat `json:"stats"`
	RequestID string           `json:"request_id"`
}

// FuncStatsHandler handles GET /v1/funcstats requests. The optional
// "functions" parameter narrows the rows to a comma-separated name list.
type FuncStatsHandler struct {
	trace *trace.Trace
}

// NewFuncStatsHandler creates a new function statistics handler.
func NewFuncStatsHandler(tr *trace.Trace) *FuncStatsHandler {
	return &FuncStatsHandler{
		trace: tr,
	}
}

// ServeHTTP handles the function statistics HTTP request.
func (h *FuncStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	if !h.trace.HasFunctionStats() {
		writeError(w, http.StatusNotFound, "trace carries no function statistics", requestID)
		return
	}

	var functions []string
	if raw := r.URL.Query().Get("functions"); raw != "" {
		for _, fn := range strings.Split(raw, ",") {
			if fn = strings.TrimSpace(fn); fn != "" {
				functions = append(functions, fn)
			}
		}
	}

	stats := h.trace.FunctionStats(functions...)
	if stats == nil {
		stats = []trace.FuncStat{}
	}

	writeJSON(w, http.StatusOK, FuncStatsResponse{
		Stats:     stats,
		RequestID: requestID,
	})
}

// AccessStatsResponse reports which events this server has been asked
// for, busiest first.
type AccessStatsResponse struct {
	Events    []observability.EventStats `json:"events"`
	RequestID string                     `json:"request_id"`
}

// AccessStatsHandler handles GET /v1/stats requests. The optional "top"
// parameter bounds the number of events reported, 10 when absent.
type AccessStatsHandler struct {
	stats *observability.LoadStats
}

// NewAccessStatsHandler creates a new access statistics handler.
func NewAccessStatsHandler(stats *observability.LoadStats) *AccessStatsHandler {
	return &AccessStatsHandler{
		stats: stats,
	}
}

// ServeHTTP handles the access statistics HTTP request.
func (h *AccessStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	top := 10
	if topStr := r.URL.Query().Get("top"); topStr != "" {
		n, err := strconv.Atoi(topStr)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer", requestID)
			return
		}
		top = n
	}

	events := h.stats.TopEvents(top)
	if events == nil {
		events = []observability.EventStats{}
	}

	writeJSON(w, http.StatusOK, AccessStatsResponse{
		Events:    events,
		RequestID: requestID,
	})
}
