package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/siherrmann/ragbot"
	"github.com/siherrmann/ragbot/config"
	"github.com/siherrmann/ragbot/model"
)

//go:embed index.html
var indexHTML []byte

// Service is the knowledge base served over http.
type Service interface {
	Chat(ctx context.Context, message string) model.ChatResponse
	IngestUpload(ctx context.Context, uploads []ragbot.Upload) model.UploadResult
	IngestWebsite(ctx context.Context, rawURL string, maxPages int, maxDepth int) (model.WebsiteResult, error)
	Status(ctx context.Context) model.Status
}

var _ Service = (*ragbot.Ragbot)(nil)

// Server serves the chat, upload and website endpoints.
type Server struct {
	service Service
	cfg     config.ServerConfig
	log     *slog.Logger
	mux     *http.ServeMux
}

// New creates a server and registers its routes.
func New(service Service, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service: service,
		cfg:     cfg,
		log:     logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /process-website", s.handleProcessWebsite)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// Mount registers an additional handler, for example the MCP endpoint.
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Handler returns the routes wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Run listens on the configured address until ctx is cancelled and then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", slog.String("addr", listener.Addr().String()))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.log.Info("Shutting down server")
	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.log.Debug("Handled request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
