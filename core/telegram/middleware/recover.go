// Package middleware holds the Telegram handler chain: panic recovery,
// per-user rate limiting and update receipt logging.
package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
)

// Recover turns a handler panic into an error log so the poller keeps running.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.Ctx(c), "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = nil
		}()
		return next(c)
	}
}
