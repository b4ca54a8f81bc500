package http

import (
	"net/http"

	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/trace"
)

// NewMux mounts the trace API handlers under /v1 with the default
// middleware chain applied.
func NewMux(traceID string, tr *trace.Trace, stats *observability.LoadStats) *http.ServeMux {
	mw := DefaultMiddleware()
	events := NewEventsHandler(tr, stats)

	mux := http.NewServeMux()
	mux.Handle("/v1/meta", mw(NewMetaHandler(traceID, tr)))
	mux.Handle("/v1/events", mw(events))
	mux.Handle("/v1/events/", mw(events))
	mux.Handle("/v1/squash/", mw(NewSquashHandler(tr, stats)))
	mux.Handle("/v1/active/", mw(NewActiveHandler(tr, stats)))
	mux.Handle("/v1/tasks", mw(NewTasksHandler(tr, stats)))
	mux.Handle("/v1/funcstats", mw(NewFuncStatsHandler(tr)))
	mux.Handle("/v1/stats", mw(NewAccessStatsHandler(stats)))
	return mux
}
