// Package adminport implements the HTTP registration and query surface: a
// configured net/http.Server wrapping a request multiplexer, started and
// stopped independently of construction. gorilla/mux gives /tasks/{uid} a
// path parameter without hand-rolled path parsing.
package adminport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/scheduler"
	"github.com/couchbase/task-scheduler/store"
	"github.com/couchbase/task-scheduler/task"
)

// Config is a typed listenAddr/timeouts struct rather than a live,
// dynamically-reloaded config map.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the admin-port: registration plus query plus stop_processing,
// backed by the scheduler, the task store, and the content file store.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log *zap.Logger

	sched   *scheduler.Scheduler
	store   *store.Store
	content *content.Store

	srv *http.Server
}

func New(cfg Config, sched *scheduler.Scheduler, s *store.Store, c *content.Store, log *zap.Logger) *Server {
	server := &Server{cfg: cfg, log: log, sched: sched, store: s, content: c}

	r := mux.NewRouter()
	r.HandleFunc("/tasks", server.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/tasks", server.handleGetTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{uid}", server.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/stop_processing", server.handleStopProcessing).Methods(http.MethodPost)

	server.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return server
}

// Start runs the HTTP server until Close is called. Intended to be started
// in its own goroutine; returns http.ErrServerClosed on a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("admin port listening", zap.String("addr", s.cfg.ListenAddr))
	return s.srv.ListenAndServe()
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv.Close()
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind, err := req.toKind(s.content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	t, err := s.sched.Register(kind)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.store.Get(uid)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if t == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t))
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	matches, err := s.store.Query(filter)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	uids := matches.ToArray()
	truncated := false
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
		truncated = true
	}
	tasks, err := s.store.GetMany(uids)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	resp := taskListResponse{Results: make([]taskView, 0, len(tasks))}
	for _, t := range tasks {
		resp.Results = append(resp.Results, newTaskView(t))
	}
	if truncated && len(tasks) > 0 {
		last := tasks[len(tasks)-1]
		cursor, err := encodeCursor(last.EnqueuedAt.UnixNano(), last.UID)
		if err == nil {
			resp.Next = cursor
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStopProcessing(w http.ResponseWriter, r *http.Request) {
	s.sched.StopProcessing()
	w.WriteHeader(http.StatusAccepted)
}

func parseUID(raw string) (uint32, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid task uid %q", raw)
	}
	return uint32(n), nil
}

// parseFilter builds a store.Filter from query parameters: status, kind,
// index_uid (repeatable), after (an opaque cursor from a prior response),
// and limit.
func parseFilter(r *http.Request) (store.Filter, int, error) {
	q := r.URL.Query()
	var f store.Filter

	for _, s := range q["status"] {
		st, ok := parseStatus(s)
		if !ok {
			return f, 0, fmt.Errorf("invalid status %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, k := range q["kind"] {
		kt, ok := parseKind(k)
		if !ok {
			return f, 0, fmt.Errorf("invalid kind %q", k)
		}
		f.Kinds = append(f.Kinds, kt)
	}
	f.Indexes = append(f.Indexes, q["index_uid"]...)

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = n
	}

	if after := q.Get("after"); after != "" {
		pos, err := decodeCursor(after)
		if err != nil {
			return f, 0, err
		}
		nanos := pos.EnqueuedAtNanos
		f.Enqueued.After = &nanos
		uid := pos.UID
		f.UIDGreaterThan = &uid
	}

	return f, limit, nil
}

func parseStatus(s string) (task.Status, bool) {
	for _, st := range task.AllStatuses {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

func parseKind(s string) (task.KindTag, bool) {
	for _, k := range task.AllKinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeTaskError maps a *task.Error category onto an HTTP status; any other
// error is a 500.
func writeTaskError(w http.ResponseWriter, err error) {
	te, ok := err.(*task.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	switch te.Category {
	case task.CategoryInvalidRequest:
		writeError(w, http.StatusBadRequest, te)
	case task.CategoryIndexNotFound:
		writeError(w, http.StatusNotFound, te)
	case task.CategoryIndexAlreadyExists:
		writeError(w, http.StatusConflict, te)
	default:
		writeError(w, http.StatusInternalServerError, te)
	}
}
