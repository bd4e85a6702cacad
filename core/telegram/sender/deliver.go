package sender

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/telegram/netutil"
)

const component = "tg.sender"

// deliver runs j until it succeeds, fails permanently, runs out of attempts or
// exceeds MaxDuration.
func (d *Dispatcher) deliver(j job) {
	ctx := j.ctx
	budget, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts, err := d.attempt(ctx, budget, j)
	base := j.attrs(ctx)
	if err == nil {
		d.sent.Add(1)
		level := slog.LevelDebug
		if attempts > 1 {
			level = slog.LevelInfo
		}
		logger.Event(ctx, component, level, "send.success", append(base,
			slog.String("status", "ok"),
			slog.Int("attempts", attempts),
			slog.Duration("duration", logger.Took(start)),
		)...)
		return
	}

	d.failed.Add(1)
	logger.Error(ctx, component, "send.fail", append(base,
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(netutil.Redact(err.Error()), 256)),
		slog.String("err_code", netutil.Classify(err)),
		slog.Int("http_code", netutil.HTTPStatus(err)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	)...)
}

func (d *Dispatcher) attempt(ctx, budget context.Context, j job) (int, error) {
	limit := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		if err := budget.Err(); err != nil {
			return n - 1, err
		}
		err := j.Run()
		if err == nil || n == limit || !netutil.Retryable(err) {
			return n, err
		}

		wait := max(d.opts.RetryBackoff*time.Duration(n), netutil.RetryAfter(err))
		logger.Debug(ctx, component, "send.retry", append(j.attrs(ctx),
			slog.String("status", "retry"),
			slog.Int("attempts", n),
			slog.Duration("backoff", wait),
		)...)

		timer := time.NewTimer(wait)
		select {
		case <-budget.Done():
			timer.Stop()
			return n, budget.Err()
		case <-timer.C:
		}
	}
}

func (j job) attrs(ctx context.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.Action)}
	if j.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.Endpoint))
	}
	if j.Key != "" && logger.ConversationIDFrom(ctx) == "" {
		attrs = append(attrs, slog.String("conversation_id", j.Key))
	}
	return attrs
}
