package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/telegram/channel"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
)

// summary describes one handler run for the handler.handled line.
// Empty status and outcome are derived from the handler error.
type summary struct {
	handler string
	start   time.Time
	status  string
	outcome string
	extras  []slog.Attr
}

func run(c tele.Context, s summary, h tele.HandlerFunc) error {
	tghelpers.ForHandler(c, s.handler)
	err := h(c)
	s.log(c, err)
	return err
}

func (s summary) log(c tele.Context, err error) {
	ctx := tghelpers.ForHandler(c, s.handler)
	result := "ok"
	level := slog.LevelInfo
	if err != nil {
		result = "fail"
		level = slog.LevelError
	}
	status, outcome := s.status, s.outcome
	if status == "" {
		status = result
	}
	if outcome == "" {
		outcome = result
	}
	msgs, _ := c.Get(channel.MessagesKey).(int)

	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Duration("duration", logger.Took(s.start)),
	}, s.extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errCode(err)),
			slog.String("cause", s.handler),
		)
	}
	logger.Event(ctx, "tg", level, "handler.handled", attrs...)
}

// handlerName turns a command or button label into a log-friendly handler name.
func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// errCode derives err_code from a Code() method anywhere in the chain, or
// from the type name of the first error.
func errCode(err error) string {
	if err == nil {
		return ""
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := joined.Unwrap(); len(errs) > 0 {
			return errCode(errs[0])
		}
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
