// Package logger is the structured logging layer shared by every component:
// a log/slog handler writing flat kv or JSON lines through an async writer,
// per-component loggers, and context helpers carrying turn correlation ids.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/m3rciful/airbot/core/buildinfo"
	coreconfig "github.com/m3rciful/airbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar      slog.LevelVar
	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger; it discards output until InitLogger runs.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// State logs state backend activity.
	State *slog.Logger
)

func init() {
	L = slog.New(slog.DiscardHandler)
	wireComponents()
}

// settings is the logging configuration after defaults were applied.
type settings struct {
	format   logFormat
	level    slog.Level
	keyOrder []string
	profile  string
	// sampleNum of every sampleDen high-volume debug events are kept; 0/0 keeps all.
	sampleNum, sampleDen int
	filePath             string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		format:    formatJSON,
		level:     slog.LevelInfo,
		keyOrder:  defaultKeyOrder,
		profile:   "prod",
		sampleNum: 1,
		sampleDen: 50,
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}

	if strings.TrimSpace(lc.DebugSample) != "" {
		s.sampleNum, s.sampleDen = parseRatioSpec(lc.DebugSample)
	}

	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && file != "" {
		s.filePath = filepath.Join(dir, file)
	}
	return s
}

// InitLogger installs the structured handler as the slog default. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		if s.filePath != "" {
			f, err := openLogFile(s.filePath)
			if err != nil {
				initErr = err
				return
			}
			outputs = append(outputs, f)
			logClosers = append(logClosers, f)
		}
		logWriter = newAsyncWriter(outputs, 64<<10, 0)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			sink:     logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(L)
		wireComponents()

		build := buildinfo.Read()
		startup := []slog.Attr{
			slog.String("go_version", build.GoVersion),
			slog.String("build_version", build.Version),
			slog.String("build_commit", build.Commit),
			slog.String("build_time", build.Date),
			slog.String("cfg_profile", s.profile),
		}
		if cfg != nil {
			startup = append(startup,
				slog.String("backend", cfg.State.Backend),
				slog.Bool("telegram", cfg.Telegram.Enabled),
				slog.String("listen", cfg.HTTP.Listen),
			)
		}
		Info(context.Background(), "app", "startup", startup...)
	})
	return initErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func wireComponents() {
	DB = Component("db")
	MIG = Component("db.migrate")
	TWire = Component("tg.wire")
	State = Component("state")
}

// Shutdown flushes pending lines and closes log files. Later calls do nothing.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Component returns L scoped to the component attribute.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes one event through logg, or through the logger stored in ctx when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Event logs event for component at level. An empty component uses the logger stored in ctx.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	var logg *slog.Logger
	if strings.TrimSpace(component) != "" {
		logg = Component(component)
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug event.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info event.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warning event.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error event.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether the next high-volume debug event should be written.
// TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
