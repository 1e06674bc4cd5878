package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alexpearce/distribute-challenge/internal/model"
	"github.com/alexpearce/distribute-challenge/internal/store"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 8 << 20 // 8 MB; payloads carry captured values
)

// submitResponse is the JSON response for POST /v1/queues/{queue}/tasks.
type submitResponse struct {
	ID string `json:"id"`
}

// pendingResponse is returned by GET /v1/tasks/{id}/outcome while the task
// has not finished.
type pendingResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// listTasksResponse wraps the paginated list response.
type listTasksResponse struct {
	Tasks  []*model.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	var msg task.Message
	if err := s.decodeBody(w, r, &msg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg.Kind == "" {
		s.writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	id, err := s.engine.Submit(r.Context(), queue, msg)
	if err != nil {
		s.logger.Error("submit task", "queue", queue, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

// handleClaimTask hands the oldest pending task of a queue to the calling
// worker. With ?wait the request blocks until a task arrives or the wait
// elapses, answering 204 when nothing was claimed.
func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	workerID := r.URL.Query().Get("worker")
	if workerID == "" {
		s.writeError(w, http.StatusBadRequest, "worker is required")
		return
	}
	wait, err := parseWait(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var t *model.Task
	if wait == 0 {
		t, err = s.engine.TryClaim(r.Context(), queue, workerID)
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		t, err = s.engine.Claim(ctx, queue, workerID)
	}

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, t)
	case r.Context().Err() != nil:
		// Client went away.
	case errors.Is(err, store.ErrQueueEmpty), errors.Is(err, context.DeadlineExceeded):
		w.WriteHeader(http.StatusNoContent)
	default:
		s.logger.Error("claim task", "queue", queue, "worker_id", workerID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to claim task")
	}
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	t, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.store.ListTasks(r.Context(), r.URL.Query().Get("queue"), limit, offset)
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	if tasks == nil {
		tasks = []*model.Task{}
	}

	s.writeJSON(w, http.StatusOK, listTasksResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetOutcome returns a finished task's outcome. With ?wait it long-polls
// until the task finishes; 202 means the task is still pending or running.
func (s *Server) handleGetOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	wait, err := parseWait(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		out      task.Outcome
		finished bool
	)
	if wait == 0 {
		out, finished, err = s.engine.Result(r.Context(), id)
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		out, err = s.engine.AwaitResult(ctx, id)
		finished = err == nil
		if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
			err = nil
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "task not found")
	case r.Context().Err() != nil:
	case err != nil:
		s.logger.Error("get outcome", "task_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get outcome")
	case !finished:
		s.writePending(w, r, id)
	default:
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) writePending(w http.ResponseWriter, r *http.Request, id string) {
	resp := pendingResponse{ID: id, Status: model.StatusPending}
	if t, err := s.store.GetTask(r.Context(), id); err == nil {
		resp.Status = t.Status
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

// handleCompleteTask records the outcome a worker reports for a task it
// claimed.
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	workerID := r.URL.Query().Get("worker")
	if workerID == "" {
		s.writeError(w, http.StatusBadRequest, "worker is required")
		return
	}

	var out task.Outcome
	if err := s.decodeBody(w, r, &out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	t, err := s.engine.Complete(r.Context(), id, workerID, out)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrWorkerMismatch):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("complete task", "task_id", id, "worker_id", workerID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to complete task")
	default:
		s.writeJSON(w, http.StatusOK, t)
	}
}

// taskID reads the {id} URL parameter. Malformed IDs cannot name a task, so
// they get a 404 without a store lookup.
func (s *Server) taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !model.ValidID(id) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return "", false
	}
	return id, true
}

// decodeBody decodes a size-limited JSON body, keeping numbers exact so
// integers survive the round trip through the store.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseWait reads the ?wait duration, capped at maxWait. A bare number is
// taken as seconds.
func parseWait(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return 0, fmt.Errorf("invalid wait %q", raw)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid wait %q", raw)
	}
	return min(d, maxWait), nil
}
