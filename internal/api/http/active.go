package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/trace"
)

// activeRoute is the path prefix the activity handler is mounted under.
const activeRoute = "/v1/active/"

// ActiveResponse carries a CPU's non-idle occupancy wave. ActiveTime is
// the integral of the wave, the seconds the CPU spent out of idle.
type ActiveResponse struct {
	CPU        int64     `json:"cpu"`
	Times      []float64 `json:"times"`
	Values     []float64 `json:"values"`
	ActiveTime float64   `json:"active_time"`
	RequestID  string    `json:"request_id"`
}

// ActiveHandler handles GET /v1/active/{cpu} requests.
type ActiveHandler struct {
	trace *trace.Trace
	stats *observability.LoadStats
}

// NewActiveHandler creates a new CPU activity handler.
func NewActiveHandler(tr *trace.Trace, stats *observability.LoadStats) *ActiveHandler {
	return &ActiveHandler{
		trace: tr,
		stats: stats,
	}
}

// ServeHTTP handles the CPU activity HTTP request.
func (h *ActiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, activeRoute), "/")
	cpu, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cpu < 0 {
		writeError(w, http.StatusBadRequest, "cpu must be a non-negative integer", requestID)
		return
	}

	s, err := h.trace.ActiveSignal(cpu)
	if err != nil {
		writeTraceError(w, err, requestID)
		return
	}

	if h.stats != nil {
		h.stats.RecordAccess("cpu_idle", "active", s.Len())
	}

	writeJSON(w, http.StatusOK, ActiveResponse{
		CPU:        cpu,
		Times:      s.Times,
		Values:     s.Values,
		ActiveTime: s.Integral(),
		RequestID:  requestID,
	})
}
