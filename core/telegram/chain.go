package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/telegram/middleware"
)

// Middlewares returns the global chain: panic recovery, the per-user rate limit
// when cfg sets an interval, then the update receipt.
func Middlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []tele.MiddlewareFunc {
	chain := []tele.MiddlewareFunc{middleware.Recover}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		chain = append(chain, middleware.RateLimit(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:   cfg.RateLimit.ExcludeUpdates,
			OnLimited: onLimited,
		}))
	}
	return append(chain, middleware.Receipt)
}
