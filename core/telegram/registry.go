package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
)

// Command is a slash command. Aliases may be typed as plain text.
type Command struct {
	Name        string
	Description string
	Handler     tele.HandlerFunc
	Hidden      bool
	Aliases     []string
}

// Registry holds the bot's commands, callback handlers and text fallback.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]Command
	aliases   map[string]string
	callbacks map[string]tele.HandlerFunc

	unknownCallback tele.HandlerFunc
	textFallback    tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown callbacks answer "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		unknownCallback: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// AddCommand registers cmd. Names must start with a slash and be unique.
func (r *Registry) AddCommand(cmd Command) error {
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		return r.reject("command", cmd.Name, "invalid")
	case !strings.HasPrefix(cmd.Name, "/"):
		return r.reject("command", cmd.Name, "no_slash_prefix")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[cmd.Name]; dup {
		return r.reject("command", cmd.Name, "duplicate")
	}
	r.commands[cmd.Name] = cmd
	for _, a := range cmd.Aliases {
		r.aliases[strings.ToLower(strings.TrimPrefix(a, "/"))] = cmd.Name
	}
	return nil
}

// Resolve finds the command addressed by text: "/name", "/name@bot args" or an alias.
func (r *Registry) Resolve(text string) (Command, bool) {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	if word == "" {
		return Command{}, false
	}
	if strings.HasPrefix(word, "/") {
		word, _, _ = strings.Cut(word, "@")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[word]; ok {
		return cmd, true
	}
	if name, ok := r.aliases[strings.ToLower(strings.TrimPrefix(word, "/"))]; ok {
		return r.commands[name], true
	}
	return Command{}, false
}

// Commands returns every command sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Menu returns the visible commands in the form Telegram's command menu expects.
func (r *Registry) Menu() []tele.Command {
	var menu []tele.Command
	for _, cmd := range r.Commands() {
		if !cmd.Hidden {
			menu = append(menu, tele.Command{Text: cmd.Name, Description: cmd.Description})
		}
	}
	return menu
}

// AddCallback maps a callback unique to its handler.
func (r *Registry) AddCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return r.reject("callback", key, "invalid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return r.reject("callback", key, "duplicate")
	}
	r.callbacks[key] = h
	return nil
}

// Callback returns the handler registered for key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackKeys returns the registered callback uniques, sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetUnknownCallback replaces the handler for callbacks without a registration. Nil is ignored.
func (r *Registry) SetUnknownCallback(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.unknownCallback = h
	r.mu.Unlock()
}

// UnknownCallback returns the handler for unregistered callbacks.
func (r *Registry) UnknownCallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknownCallback
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for text that is not a command.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

var errRejected = errors.New("telegram: registration rejected")

func (r *Registry) reject(kind, name, reason string) error {
	logger.Warn(context.Background(), "tg.wire", "register."+kind+".skip",
		slog.String("key", name),
		slog.String("cause", reason),
	)
	return fmt.Errorf("%w: %s %q: %s", errRejected, kind, name, reason)
}

// publishMenu sets the Telegram command menu. Failures are logged only.
func publishMenu(ctx context.Context, bot *tele.Bot, reg *Registry) {
	menu := reg.Menu()
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Debug(ctx, "tg.wire", "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("count", len(menu)),
	)
}
