// Package server exposes uploads, digests, question answering and
// narratives over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/KaramelBytes/datastory/internal/pipeline"
)

// Server routes HTTP requests to the pipeline and its collaborators.
type Server struct {
	pipe   *pipeline.Pipeline
	log    *slog.Logger
	router *chi.Mux

	// MaxUploadBytes caps the multipart body of /upload.
	MaxUploadBytes int64
	// NarrateTimeout bounds the background narrative run after an upload.
	NarrateTimeout time.Duration
}

// New builds a server over p. A nil logger discards output.
func New(p *pipeline.Pipeline, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		pipe:           p,
		log:            log,
		router:         chi.NewRouter(),
		MaxUploadBytes: 64 << 20,
		NarrateTimeout: 10 * time.Minute,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Post("/upload", s.handleUpload)
	s.router.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleSession)
		r.Get("/digest", s.handleDigest)
		r.Get("/qa", s.handleQA)
		r.Get("/facts", s.handleFacts)
		r.Post("/ask", s.handleAsk)
		r.Post("/ask-rag", s.handleAskRAG)
		r.Post("/story", s.handleStory)
		r.Post("/narrative", s.handleNarrative)
		r.Post("/emotions", s.handleEmotions)
		r.Post("/description", s.handleDescription)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// requestLogger logs one line per request with its id, status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed", time.Since(began))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and waits for background narrative runs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.pipe.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
