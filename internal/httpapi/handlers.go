package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/event"
	"github.com/agentctl/agentctl/internal/scheduler"
	"github.com/agentctl/agentctl/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr renders err as the structured `{ error: string }` body (spec
// §4.5 "All responses are structured; errors carry {error: string}").
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errkind.KindOf(err) {
	case errkind.InvalidInput, errkind.CLIValidationFailed:
		status = http.StatusBadRequest
	case errkind.NotFound:
		status = http.StatusNotFound
	case errkind.Ambiguous:
		status = http.StatusConflict
	case errkind.ContextUnauthorized, errkind.OperatorActionDisallow:
		status = http.StatusForbidden
	case errkind.RequestTimeout, errkind.BackendTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

type runsStartRequest struct {
	Prompt    string `json:"prompt"`
	MaxSteps  int    `json:"max_steps"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

func (s *Server) handleRunsStart(w http.ResponseWriter, r *http.Request) {
	var req runsStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, errkind.Wrap(errkind.InvalidInput, "decode request body", err))
		return
	}
	if req.Prompt == "" {
		writeErr(w, errkind.New(errkind.InvalidInput, "prompt must not be empty"))
		return
	}
	rec, err := s.sched.EnqueueRun(req.Prompt, req.MaxSteps)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.onReload != nil {
		if err := s.onReload(); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopping": true})
	select {
	case s.shutdownReq <- struct{}{}:
	default:
	}
}

func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	filter := scheduler.RunFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = scheduler.RunStatus(status)
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	writeJSON(w, http.StatusOK, s.sched.ListRuns(filter))
}

func (s *Server) handleHeartbeatsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.ListHeartbeats())
}

type heartbeatCreateRequest struct {
	TargetID    string `json:"target_id"`
	EveryMs     int64  `json:"every_ms"`
	AutoDisable bool   `json:"auto_disable_on_terminal"`
}

func (s *Server) handleHeartbeatsCreate(w http.ResponseWriter, r *http.Request) {
	var req heartbeatCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, errkind.Wrap(errkind.InvalidInput, "decode request body", err))
		return
	}
	hb, err := s.sched.CreateHeartbeat(req.TargetID, req.EveryMs, req.AutoDisable)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hb)
}

func (s *Server) handleCronList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.ListCron())
}

func (s *Server) handleIssuesList(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{
		Status: store.Status(r.URL.Query().Get("status")),
		Tag:    r.URL.Query().Get("tag"),
	}
	writeJSON(w, http.StatusOK, s.store.List(filter))
}

func (s *Server) handleIssuesReady(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	ready, err := s.store.Ready(root, store.ReadyFilter{Contains: r.URL.Query().Get("contains")})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ready)
}

func (s *Server) handleIssueGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	issue, err := s.store.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if issue == nil {
		writeErr(w, errkind.Newf(errkind.NotFound, "no issue %s", id))
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleForumRead(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	writeJSON(w, http.StatusOK, s.store.Read(topic, limit))
}

// handleEventsStream drains the workspace's event bus over
// server-sent-events, so a caller can watch run/heartbeat/cron/issue
// transitions live instead of polling GET /api/events (spec §4.3
// "Queries", DOMAIN STACK watermill wiring). The connection stays open
// until the client disconnects.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, errkind.New(errkind.StorageIO, "streaming unsupported by response writer"))
		return
	}

	events, err := event.Stream(r.Context())
	if err != nil {
		writeErr(w, errkind.Wrap(errkind.StorageIO, "subscribe to event bus", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	q := store.EventQuery{
		Type:    r.URL.Query().Get("type"),
		Source:  r.URL.Query().Get("source"),
		IssueID: r.URL.Query().Get("issue_id"),
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		q.Limit = v
	}
	writeJSON(w, http.StatusOK, s.store.Query(q))
}
