// Package server exposes the WhatsApp webhook, the stored media files and a
// health check over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/whatsapp"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// Inbox accepts parsed inbound events for asynchronous processing.
type Inbox interface {
	Submit(ev conversation.Event) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP settings.
type Config struct {
	Addr string `mapstructure:"addr"`
	// MediaDir is the root of locally stored media, one directory per category.
	MediaDir     string        `mapstructure:"-"`
	VerifyToken  string        `mapstructure:"-"`
	AppSecret    string        `mapstructure:"-"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
}

type Server struct {
	cfg    Config
	inbox  Inbox
	health Pinger
	logger *zap.Logger
}

func New(cfg Config, inbox Inbox, health Pinger, logger *zap.Logger) (*Server, error) {
	if inbox == nil {
		return nil, errors.New("inbox is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3008"
	}
	if !strings.Contains(cfg.Addr, ":") {
		// a bare port, as PORT is usually given
		cfg.Addr = ":" + cfg.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	return &Server{cfg: cfg, inbox: inbox, health: health, logger: logger}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthCheck)

	r.Route("/webhook", func(r chi.Router) {
		r.Get("/", s.verify)
		r.Post("/", s.receive)
	})

	r.Get("/cv/{filename}", s.file(media.CategoryCV))
	r.Get("/videos/{filename}", s.file(media.CategoryVideo))
	r.Get("/audios/{filename}", s.file(media.CategoryAudio))
	r.Get("/receipts/{filename}", s.file(media.CategoryReceipts))

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifyChallenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.cfg.VerifyToken)
	if !ok {
		s.logger.Warn("webhook verification rejected", zap.String("mode", q.Get("hub.mode")))
		Error(w, http.StatusForbidden, "verification failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// receive acknowledges as soon as the events are queued; the provider
// redelivers anything that is not acknowledged quickly.
func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !whatsapp.ValidSignature(body, r.Header.Get("X-Hub-Signature-256"), s.cfg.AppSecret) {
		s.logger.Warn("webhook signature mismatch")
		Error(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	events, err := whatsapp.Parse(body)
	if err != nil {
		s.logger.Warn("webhook payload rejected", zap.Error(err))
		Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	for _, ev := range events {
		if err := s.inbox.Submit(ev); err != nil {
			s.logger.Error("queueing event failed",
				zap.String("user", ev.From),
				zap.String("event", ev.ID),
				zap.Error(err),
			)
			Error(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
	}

	JSON(w, http.StatusOK, map[string]int{"received": len(events)})
}

func (s *Server) file(category media.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if err := media.SafeName(name); err != nil {
			Error(w, http.StatusBadRequest, "invalid file name")
			return
		}

		path := filepath.Join(s.cfg.MediaDir, string(category), name)
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			Error(w, http.StatusNotFound, "file not found")
			return
		}
		if err != nil {
			s.logger.Error("opening media failed", zap.String("path", path), zap.Error(err))
			Error(w, http.StatusInternalServerError, "error reading file")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			if err != nil {
				s.logger.Error("reading media failed", zap.String("path", path), zap.Error(err))
			}
			Error(w, http.StatusInternalServerError, "error reading file")
			return
		}

		w.Header().Set("Content-Type", media.ContentType(name))
		w.Header().Set("Accept-Ranges", "bytes")
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	code := http.StatusOK

	if s.health != nil {
		checks := status["checks"].(map[string]string)
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	JSON(w, code, status)
}
