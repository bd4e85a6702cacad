// Package router binds registry commands, text, callbacks and member updates
// to telebot endpoints. Every handler runs behind Recover and Receipt and ends
// with one handler.handled summary line.
package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
	tg "github.com/m3rciful/airbot/core/telegram"
	"github.com/m3rciful/airbot/core/telegram/callbacks"
	"github.com/m3rciful/airbot/core/telegram/middleware"
)

// Options supplies handlers for updates the registry does not cover.
type Options struct {
	// UnknownText handles text when neither a command nor the text fallback matches.
	UnknownText tele.HandlerFunc
	// UnknownCallback is used when the registry has no not-found handler.
	UnknownCallback tele.HandlerFunc
	// Member handles users joining a chat; nil skips the route.
	Member tele.HandlerFunc
}

// Routes builds one route per registered command plus the text, callback and
// member routes.
func Routes(reg *tg.Registry, opts Options) []tg.Route {
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds)+3)
	for _, cmd := range cmds {
		routes = append(routes, route(cmd.Name, fixed(handlerName(cmd.Name), cmd.Handler)))
	}
	routes = append(routes,
		route(tele.OnText, textHandler(reg, opts.UnknownText)),
		route(tele.OnCallback, callbackHandler(reg, opts.UnknownCallback)),
	)
	if opts.Member != nil {
		routes = append(routes, route(tele.OnUserJoined, fixed("member_added", opts.Member)))
	}

	logger.Info(context.Background(), "tg.wire", "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.CallbackKeys())),
		slog.Int("count", len(routes)),
	)
	return routes
}

func route(endpoint any, h tele.HandlerFunc) tg.Route {
	return tg.Route{Endpoint: endpoint, Handler: middleware.Recover(middleware.Receipt(h))}
}

func fixed(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		return run(c, summary{handler: name, start: time.Now()}, h)
	}
}

// textHandler resolves command aliases typed as plain text before the fallback.
func textHandler(reg *tg.Registry, unknown tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		s := summary{start: time.Now()}
		if cmd, ok := reg.Resolve(c.Text()); ok {
			s.handler = handlerName(cmd.Name)
			return run(c, s, cmd.Handler)
		}
		if fb := reg.TextFallback(); fb != nil {
			s.handler = "turn"
			return run(c, s, fb)
		}
		s.handler = "unknown_text"
		if unknown != nil {
			return run(c, s, unknown)
		}
		s.status = "skip"
		s.log(c, nil)
		return nil
	}
}

// callbackHandler dispatches on the callback unique. Registered handlers
// acknowledge the query themselves.
func callbackHandler(reg *tg.Registry, unknown tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key := callbacks.Key(cb)
		s := summary{
			handler: "callback." + handlerName(key),
			start:   time.Now(),
			extras:  []slog.Attr{slog.String("cb_key", key)},
		}
		if h, ok := reg.Callback(key); ok {
			return run(c, s, h)
		}

		s.status = "skip"
		s.extras = append(s.extras, slog.String("reason", "not_found"))
		fallback := reg.UnknownCallback()
		if fallback == nil {
			fallback = unknown
		}
		if fallback == nil {
			fallback = func(c tele.Context) error { return c.Respond() }
		}
		return run(c, s, fallback)
	}
}
