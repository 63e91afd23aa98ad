package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/telegram/netutil"
)

// HTTPOptions tunes the Bot API client.
type HTTPOptions struct {
	// LongPoll is how long getUpdates may hold a request open. The client
	// timeout is stretched past it.
	LongPoll time.Duration
	// Retries is the number of extra attempts for transient transport errors.
	Retries int
	Backoff time.Duration
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// BuildHTTPClient returns the client handed to telebot. Transport-level
// failures that Classify marks retryable are retried with linear backoff.
func BuildHTTPClient(opts HTTPOptions) *http.Client {
	opts = opts.withDefaults()
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: opts.LongPoll + 15*time.Second,
		Transport: &retryTransport{
			base:    transport,
			retries: opts.Retries,
			backoff: opts.Backoff,
		},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	// A body that cannot be rewound is sent once.
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 1; ; attempt++ {
		out := req
		if attempt > 1 {
			out = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				out.Body = body
			}
		}

		resp, err := t.base.RoundTrip(out)
		if err == nil {
			return resp, nil
		}
		f := netutil.Classify(err)
		if !f.Retry || !replayable || attempt > t.retries {
			return nil, err
		}

		delay := t.backoff * time.Duration(attempt)
		if f.After > delay {
			delay = f.After
		}
		logger.Debug(ctx, "tg", "http.retry",
			slog.String("method", apiMethod(req)),
			slog.Int("attempt", attempt),
			slog.String("error_kind", f.Kind),
			slog.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// apiMethod returns the last path segment (sendMessage, getUpdates) so the
// token in the URL never reaches the logs.
func apiMethod(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return path.Base(req.URL.Path)
}
