package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	idgen "github.com/minhd-vu/webserver/internal/id/uuid"
	"github.com/minhd-vu/webserver/internal/metrics"
	"github.com/minhd-vu/webserver/internal/store"
	"github.com/minhd-vu/webserver/internal/threadpool"
)

// PoolInspector is the read-only view of a thread pool the API reports on.
type PoolInspector interface {
	Size() int
	LiveWorkers() int
	QueueLen() int
	QueueCap() int
	State() threadpool.State
}

// Options configures a Server.
type Options struct {
	Pool PoolInspector
	// Runs backs the /v1/jobs routes; nil answers them with 404.
	Runs store.JobRunRepository
	// Dropped reports lifecycle events the progress hub had to discard.
	Dropped func() int64
	Logger  *zap.Logger
}

// Server wires HTTP handlers to the pool and job-run repository.
type Server struct {
	router chi.Router
	pool   PoolInspector
	jobs   *JobHandler
	drops  func() int64
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pool:   opts.Pool,
		drops:  opts.Dropped,
		logger: logger,
	}
	if opts.Runs != nil {
		s.jobs = NewJobHandler(opts.Runs, logger)
	}

	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pool", s.poolStatus)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Get("/{job_id}", s.getJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.pool == nil || s.pool.State() != threadpool.StateRunning {
		state := "unavailable"
		if s.pool != nil {
			state = s.pool.State().String()
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "state": state})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) poolStatus(w http.ResponseWriter, _ *http.Request) {
	if s.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "thread pool unavailable")
		return
	}
	resp := poolDTO{
		Size:        s.pool.Size(),
		LiveWorkers: s.pool.LiveWorkers(),
		State:       s.pool.State().String(),
		Queued:      s.pool.QueueLen(),
		QueueCap:    s.pool.QueueCap(),
	}
	if s.drops != nil {
		resp.EventsDropped = s.drops()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusNotFound, "job history is not enabled")
		return
	}
	s.jobs.ListJobs(w, r)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusNotFound, "job history is not enabled")
		return
	}
	s.jobs.GetJob(w, r)
}

type poolDTO struct {
	Size          int    `json:"size"`
	LiveWorkers   int    `json:"live_workers"`
	State         string `json:"state"`
	Queued        int    `json:"queued"`
	QueueCap      int    `json:"queue_cap"`
	EventsDropped int64  `json:"events_dropped"`
}

type requestIDKey struct{}

var requestIDs = idgen.New()

// RequestID returns the id assigned to the request by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			var err error
			if reqID, err = requestIDs.NewString(); err != nil {
				reqID = "unknown"
			}
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
