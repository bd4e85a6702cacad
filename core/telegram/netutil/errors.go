// Package netutil classifies Telegram API and transport failures for retry
// decisions and log fields.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Redact hides bot tokens embedded in API URLs.
func Redact(s string) string {
	return tokenRe.ReplaceAllString(s, "bot<redacted>")
}

// Retryable reports whether repeating the call may succeed: flood control,
// 5xx answers and transport timeouts or refused dials.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch code := HTTPStatus(err); {
	case code == http.StatusTooManyRequests, code >= 500:
		return true
	case code >= 400:
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryAfter returns the wait requested by a flood-control answer, or zero.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}

// HTTPStatus extracts the API status code carried by err, or 0.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	// telebot formats unknown API errors as "telegram: <description> (<code>)"
	msg := err.Error()
	open, end := strings.LastIndexByte(msg, '('), strings.LastIndexByte(msg, ')')
	if open >= 0 && end > open+1 {
		if code, convErr := strconv.Atoi(msg[open+1 : end]); convErr == nil {
			return code
		}
	}
	return 0
}

// Classify maps err to the err_code vocabulary of send failures.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return "tls"
	}
	switch code := HTTPStatus(err); {
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}
