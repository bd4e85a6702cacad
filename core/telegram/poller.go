package telegram

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// NewPoller returns a webhook poller for run mode "webhook" and a long poller otherwise.
func NewPoller(tg config.TelegramConfig, wh config.WebhookConfig) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(tg.RunMode), config.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}
	timeout := defaultLongPollTimeout
	if tg.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(tg.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

func describePoller(p tele.Poller) []slog.Attr {
	switch p := p.(type) {
	case *tele.Webhook:
		return []slog.Attr{
			slog.String("mode", config.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		}
	case *tele.LongPoller:
		return []slog.Attr{
			slog.String("mode", config.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
		}
	}
	return []slog.Attr{slog.String("mode", "custom")}
}
