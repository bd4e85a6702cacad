package telegram

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/airbot/core/telegram/netutil"
)

// ClientOptions tunes transport-level retries of Telegram API calls.
// Zero values select the defaults.
type ClientOptions struct {
	MaxRetries int
	Backoff    time.Duration
	Timeout    time.Duration
	// Base is the transport under the retry layer.
	Base http.RoundTripper
}

// NewHTTPClient returns a client whose transport retries dial errors, timeouts
// and 5xx answers with a linear backoff. Requests without GetBody are sent once.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Base == nil {
		opts.Base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &retrying{base: opts.Base, retries: opts.MaxRetries, backoff: opts.Backoff},
	}
}

type retrying struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retrying) RoundTrip(req *http.Request) (*http.Response, error) {
	for n := 0; ; n++ {
		resp, err := t.base.RoundTrip(req)
		if n == t.retries || !t.replayable(req) || !t.shouldRetry(resp, err) {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		timer := time.NewTimer(t.backoff * time.Duration(n+1))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

func (t *retrying) replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func (t *retrying) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return netutil.Retryable(err)
	}
	return resp.StatusCode >= http.StatusInternalServerError
}
