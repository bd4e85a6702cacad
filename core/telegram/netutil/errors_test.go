package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"server", &tele.Error{Code: 502, Description: "bad gateway"}, true},
		{"client", &tele.Error{Code: 400, Description: "chat not found"}, false},
		{"flood", tele.FloodError{RetryAfter: 3}, true},
		{"wrapped server", fmt.Errorf("send: %w", &tele.Error{Code: 500, Description: "oops"}), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	require.Equal(t, 3*time.Second, RetryAfter(tele.FloodError{RetryAfter: 3}))
	require.Zero(t, RetryAfter(errors.New("x")))
	require.Zero(t, RetryAfter(nil))
}

func TestClassify(t *testing.T) {
	require.Empty(t, Classify(nil))
	require.Equal(t, "http_5xx", Classify(&tele.Error{Code: 500}))
	require.Equal(t, "http_4xx", Classify(&tele.Error{Code: 403}))
	require.Equal(t, "rate_limited", Classify(tele.FloodError{RetryAfter: 1}))
	require.Equal(t, "timeout", Classify(context.DeadlineExceeded))
	require.Equal(t, "dial", Classify(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.Equal(t, "unknown", Classify(errors.New("boom")))
	require.Equal(t, 409, HTTPStatus(errors.New("telegram: conflict (409)")))
}

func TestRedact(t *testing.T) {
	require.Equal(t,
		"Post https://api.telegram.org/bot<redacted>/sendMessage: EOF",
		Redact("Post https://api.telegram.org/bot123:ABC/sendMessage: EOF"))
}
