package http

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/trace"
)

// TaskEntry pairs a PID with the last name it ran under.
type TaskEntry struct {
	PID  int64  `json:"pid"`
	Name string `json:"name"`
}

// TasksResponse lists tasks observed by the scheduler during the trace.
type TasksResponse struct {
	Tasks     []TaskEntry `json:"tasks"`
	RequestID string      `json:"request_id"`
}

// TasksHandler handles GET /v1/tasks requests. Without parameters it
// lists every task seen in sched_switch; "pid" or "name" narrow the
// listing to one task or one name's PIDs.
type TasksHandler struct {
	trace *trace.Trace
	stats *observability.LoadStats
}

// NewTasksHandler creates a new task lookup handler.
func NewTasksHandler(tr *trace.Trace, stats *observability.LoadStats) *TasksHandler {
	return &TasksHandler{
		trace: tr,
		stats: stats,
	}
}

// ServeHTTP handles the task lookup HTTP request.
func (h *TasksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	q := r.URL.Query()
	pidStr := q.Get("pid")
	name := q.Get("name")
	if pidStr != "" && name != "" {
		writeError(w, http.StatusBadRequest, "pid and name are mutually exclusive", requestID)
		return
	}

	var tasks []TaskEntry
	switch {
	case pidStr != "":
		pid, err := strconv.ParseInt(pidStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pid must be an integer", requestID)
			return
		}
		taskName, ok := h.trace.TaskByPID(pid)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no task with pid %d", pid), requestID)
			return
		}
		tasks = []TaskEntry{{PID: pid, Name: taskName}}

	case name != "":
		pids := h.trace.PIDsByName(name)
		if len(pids) == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no task named %q", name), requestID)
			return
		}
		for _, pid := range pids {
			tasks = append(tasks, TaskEntry{PID: pid, Name: name})
		}

	default:
		for pid, taskName := range h.trace.Tasks() {
			tasks = append(tasks, TaskEntry{PID: pid, Name: taskName})
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].PID < tasks[j].PID })
	}

	if tasks == nil {
		tasks = []TaskEntry{}
	}
	if h.stats != nil {
		h.stats.RecordAccess("sched_switch", "tasks", len(tasks))
	}

	writeJSON(w, http.StatusOK, TasksResponse{
		Tasks:     tasks,
		RequestID: requestID,
	})
}
