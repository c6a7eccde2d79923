// Package server implements the control HTTP server the companion app talks
// to: pairing, run dispatch, build status, fixes and push registration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/session"
)

// DefaultBodyLimit caps request bodies.
const DefaultBodyLimit = 1 << 20

// Dispatcher starts and stops the run configuration.
type Dispatcher interface {
	Dispatch() (uint64, error)
	Stop(ctx context.Context) error
	Running() bool
}

// Fixer produces failure summaries and fix proposals.
type Fixer interface {
	SummarizeFailure(ctx context.Context, logs string) (session.FailureSummary, error)
	RequestFix(ctx context.Context, root, buildMessage string) ([]session.FileFix, error)
}

// Config wires the server to the rest of the bridge.
type Config struct {
	Session    *session.Session
	Project    *project.Active
	Dispatcher Dispatcher
	Fixer      Fixer
	Logger     zerolog.Logger
	// BodyLimit caps request bodies in bytes (default 1 MiB).
	BodyLimit int64
}

// Server is the control server.
type Server struct {
	session    *session.Session
	project    *project.Active
	dispatcher Dispatcher
	fixer      Fixer
	log        zerolog.Logger
	bodyLimit  int64

	router chi.Router
}

// New creates a server and builds its router.
func New(cfg Config) *Server {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	s := &Server{
		session:    cfg.Session,
		project:    cfg.Project,
		dispatcher: cfg.Dispatcher,
		fixer:      cfg.Fixer,
		log:        cfg.Logger.With().Str("component", "server").Logger(),
		bodyLimit:  cfg.BodyLimit,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(s.recoverer)
	r.Use(s.limitBody)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/generateQR", s.handleGenerateQR)
	r.Post("/runApplication", s.handleRunApplication)
	r.Post("/stopApplication", s.handleStopApplication)
	for _, path := range []string{"/getStatus", "/buildStatus", "/getBuildStatus"} {
		r.Get(path, s.handleGetStatus)
	}
	r.Get("/getFix", s.handleGetFix)
	r.Post("/getFix", s.handleGetFix)
	r.Post("/doFix", s.handleDoFix)
	r.Get("/status", s.handleStatus)
	r.Post("/updateFcmToken", s.handleUpdateToken)
	r.Get("/events", s.handleEvents)

	return r
}

// recoverer answers panics with a JSON 500 so the listener keeps serving.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.bodyLimit)
		}
		next.ServeHTTP(w, r)
	})
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("control server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
