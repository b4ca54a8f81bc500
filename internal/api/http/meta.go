package http

import (
	"net/http"

	"github.com/vdonnefort/lisa/internal/trace"
)

// MetaResponse summarizes the loaded trace.
type MetaResponse struct {
	TraceID          string                 `json:"trace_id,omitempty"`
	Format           string                 `json:"format"`
	StartTime        float64                `json:"start_time"`
	EndTime          float64                `json:"end_time"`
	TimeRange        float64                `json:"time_range"`
	CPUCount         int                    `json:"cpu_count"`
	EventCount       int                    `json:"event_count"`
	OverutilizedTime float64                `json:"overutilized_time"`
	OverutilizedPct  float64                `json:"overutilized_pct"`
	FreqCoherent     bool                   `json:"freq_coherent"`
	FreqIncoherency  *trace.FreqIncoherency `json:"freq_incoherency,omitempty"`
	HasFunctionStats bool                   `json:"has_function_stats"`
	RequestID        string                 `json:"request_id"`
}

// MetaHandler handles GET /v1/meta requests.
type MetaHandler struct {
	traceID string
	trace   *trace.Trace
}

// NewMetaHandler creates a new metadata handler.
func NewMetaHandler(traceID string, tr *trace.Trace) *MetaHandler {
	return &MetaHandler{
		traceID: traceID,
		trace:   tr,
	}
}

// ServeHTTP handles the metadata HTTP request.
func (h *MetaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	resp := MetaResponse{
		TraceID:          h.traceID,
		Format:           h.trace.Format().String(),
		StartTime:        h.trace.StartTime(),
		EndTime:          h.trace.EndTime(),
		TimeRange:        h.trace.TimeRange(),
		CPUCount:         h.trace.CPUCount(),
		EventCount:       len(h.trace.Available()),
		OverutilizedTime: h.trace.OverutilizedTime(),
		OverutilizedPct:  h.trace.OverutilizedPct(),
		FreqCoherent:     h.trace.FreqCoherent(),
		FreqIncoherency:  h.trace.FreqIncoherency(),
		HasFunctionStats: h.trace.HasFunctionStats(),
		RequestID:        requestID,
	}

	writeJSON(w, http.StatusOK, resp)
}
