// Package server exposes the compositing pipeline over HTTP.
//
// Routes:
//
//	POST /v1/composite   composite a request, returns the image or JSON
//	GET  /healthz        liveness probe
//	GET  /version        build information
//
// A composite request body is a JSON [pipeline.Options] document. By default
// the response body is the encoded image; with ?output=json it is the
// [pipeline.Result] metadata plus a data URL.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/matzehuels/snapcomp/pkg/buildinfo"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/pipeline"
)

// Defaults for Config.
const (
	DefaultAddr           = ":8080"
	DefaultMaxBodyBytes   = 32 << 20
	DefaultRequestTimeout = 2 * time.Minute
	shutdownTimeout       = 10 * time.Second
)

// Response headers describing a composite.
const (
	HeaderCache       = "X-Snapcomp-Cache"
	HeaderCaptured    = "X-Snapcomp-Captured"
	HeaderFailed      = "X-Snapcomp-Failed"
	HeaderPassThrough = "X-Snapcomp-Pass-Through"
)

// Config configures the HTTP server.
type Config struct {
	Addr           string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Server serves compositing requests with a shared runner.
type Server struct {
	cfg    Config
	runner *pipeline.Runner
	logger *log.Logger
	router chi.Router
}

// New creates a server. The runner's loader decides which sources
// requests may reference; callers serving untrusted clients should disable
// file sources on it.
func New(runner *pipeline.Runner, cfg Config, logger *log.Logger) *Server {
	cfg.setDefaults()
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{cfg: cfg, runner: runner, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		r.With(middleware.AllowContentType("application/json")).Post("/composite", s.handleComposite)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

type compositeResponse struct {
	*pipeline.Result
	DataURL string `json:"data_url"`
}

func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var opts pipeline.Options
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge,
				apperr.New(apperr.ErrCodeInvalidInput, "request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	opts.RequestID = reqID
	opts.Logger = s.logger

	result, err := s.runner.Execute(ctx, opts)
	if err != nil {
		s.writeError(w, r, StatusFor(err), err)
		return
	}

	h := w.Header()
	h.Set(HeaderCaptured, strconv.Itoa(result.Stats.Captured))
	h.Set(HeaderFailed, strconv.Itoa(result.Stats.Failed))
	h.Set(HeaderPassThrough, strconv.FormatBool(result.PassThrough))
	if result.CacheInfo.Key != "" {
		h.Set(HeaderCache, cacheStatus(result.CacheInfo.Hit))
	}

	if r.URL.Query().Get("output") == "json" {
		writeJSON(w, http.StatusOK, compositeResponse{Result: result, DataURL: result.DataURL()})
		return
	}
	h.Set("Content-Type", result.MediaType)
	h.Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

type errorBody struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	code := apperr.GetCode(err)
	if code == "" {
		code = apperr.ErrCodeInternal
	}
	if status >= 500 {
		s.logger.Error("request failed", "request", middleware.GetReqID(r.Context()), "code", code, "err", err)
	} else {
		s.logger.Warn("request rejected", "request", middleware.GetReqID(r.Context()), "code", code, "err", err)
	}
	writeJSON(w, status, errorBody{
		Error:     errorDetail{Code: code, Message: apperr.UserMessage(err)},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch apperr.GetCode(err) {
	case apperr.ErrCodeInvalidInput, apperr.ErrCodeInvalidFormat, apperr.ErrCodeInvalidSource,
		apperr.ErrCodeInvalidRegion, apperr.ErrCodeInvalidManifest:
		return http.StatusBadRequest
	case apperr.ErrCodeBaseLoad:
		return http.StatusUnprocessableEntity
	case apperr.ErrCodeNotFound, apperr.ErrCodeFileNotFound:
		return http.StatusNotFound
	case apperr.ErrCodeNetwork:
		return http.StatusBadGateway
	case apperr.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperr.ErrCodeUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func cacheStatus(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID propagates the caller's X-Request-Id or assigns a UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"elapsed", time.Since(start))
	})
}
