package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/turn"
)

// handleWebSocket reads one activity per text frame and answers with one
// frame per reply message. A failed turn is followed by an error frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		logger.Warn(r.Context(), "web", "ws.accept",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()
	ws.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Debug(ctx, "web", "ws.read",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
			return
		}
		if typ != websocket.MessageText {
			if err := writeFrame(ctx, ws, Response{Error: "text frames only"}); err != nil {
				return
			}
			continue
		}
		if err := s.serveFrame(ctx, ws, data); err != nil {
			return
		}
	}
}

func (s *Server) serveFrame(ctx context.Context, ws *websocket.Conn, data []byte) error {
	act, err := DecodeActivity(data, Channel, s.cfg.BotID)
	if err != nil {
		return writeFrame(ctx, ws, Response{Error: err.Error()})
	}
	res, turnErr := s.handler.OnTurn(ctx, act)
	for _, m := range res.Messages {
		if err := writeFrame(ctx, ws, m); err != nil {
			return err
		}
	}
	if turnErr != nil {
		return writeFrame(ctx, ws, Response{Messages: []turn.Message{}, Error: turnErr.Error()})
	}
	return nil
}

func writeFrame(ctx context.Context, ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, b)
}

// originPatterns converts allowed origins to host patterns accepted by websocket.Accept.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
