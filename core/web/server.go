// Package web serves the bot over HTTP: a JSON turn endpoint, a WebSocket
// stream of activities and a health probe.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/turn"
)

// Channel is the activity channel name for HTTP and WebSocket clients.
const Channel = "web"

const maxBodyBytes = 64 << 10

// Server exposes a turn.Handler over HTTP.
type Server struct {
	handler turn.Handler
	cfg     config.HTTPConfig
}

// NewServer returns a server for h.
func NewServer(h turn.Handler, cfg config.HTTPConfig) (*Server, error) {
	if h == nil {
		return nil, errors.New("web: nil turn handler")
	}
	if cfg.BotID == "" {
		cfg.BotID = "airbot"
	}
	return &Server{handler: h, cfg: cfg}, nil
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/health"))
	r.Use(CORS(s.cfg.AllowedOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/activities", s.handleActivity)
		r.Post("/cancel", s.handleCancel)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "web", "web.listen",
			slog.String("status", "ok"),
			slog.String("listen", s.cfg.Listen),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.serveTurn(w, r, s.handler.OnTurn)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.serveTurn(w, r, s.handler.Cancel)
}

func (s *Server) serveTurn(w http.ResponseWriter, r *http.Request, fn func(context.Context, turn.Activity) (turn.Result, error)) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, Response{Messages: []turn.Message{}, Error: "body too large"})
		return
	}
	act, err := DecodeActivity(body, Channel, s.cfg.BotID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Messages: []turn.Message{}, Error: err.Error()})
		return
	}

	ctx := logger.WithRID(r.Context(), chimw.GetReqID(r.Context()))
	res, err := fn(ctx, act)
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, NewResponse(res, err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug(context.Background(), "web", "web.encode",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := "ok"
		if ww.Status() >= http.StatusInternalServerError {
			status = "fail"
		}
		logger.Debug(logger.WithRID(r.Context(), chimw.GetReqID(r.Context())), "web", "request.handled",
			slog.String("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
