// Package netutil classifies failures of outbound Telegram calls so the
// sender and the HTTP transport agree on what is worth retrying.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Failure kinds reported by Classify.
const (
	KindTimeout   = "timeout"
	KindDNS       = "dns"
	KindDial      = "dial"
	KindTLS       = "tls"
	KindFlood     = "flood"
	KindHTTP5xx   = "http_5xx"
	KindHTTP4xx   = "http_4xx"
	KindCancelled = "cancelled"
	KindUnknown   = "unknown"
)

// Failure describes an error for retry and logging purposes.
type Failure struct {
	Kind   string
	Status int
	// Retry is set for transient failures.
	Retry bool
	// After is the wait the server asked for (flood control), zero otherwise.
	After time.Duration
}

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Classify inspects err. A nil error yields the zero Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Kind: KindCancelled}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Kind: KindTimeout, Retry: true}
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return Failure{
			Kind:   KindFlood,
			Status: http.StatusTooManyRequests,
			Retry:  true,
			After:  time.Duration(flood.RetryAfter) * time.Second,
		}
	}
	if status := statusOf(err); status != 0 {
		if status >= http.StatusInternalServerError {
			return Failure{Kind: KindHTTP5xx, Status: status, Retry: true}
		}
		if status >= http.StatusBadRequest {
			return Failure{Kind: KindHTTP4xx, Status: status}
		}
	}

	return classifyNet(err)
}

func classifyNet(err error) Failure {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Failure{Kind: KindDNS, Retry: dnsErr.IsTimeout || dnsErr.IsTemporary}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Timeout():
			return Failure{Kind: KindTimeout, Retry: true}
		case opErr.Op == "dial":
			return Failure{Kind: KindDial, Retry: true}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure{Kind: KindTimeout, Retry: true}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return Failure{Kind: KindTimeout, Retry: true}
		}
		if urlErr.Err != nil && urlErr.Err != err {
			if inner := classifyNet(urlErr.Err); inner.Kind != KindUnknown {
				return inner
			}
		}
	}

	var alert tls.AlertError
	if errors.As(err, &alert) {
		return Failure{Kind: KindTLS}
	}
	return Failure{Kind: KindUnknown}
}

// statusOf extracts the Bot API status code. Telebot wraps some failures in
// plain errors ending with "(code)".
func statusOf(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	msg := err.Error()
	open := strings.LastIndex(msg, "(")
	closing := strings.LastIndex(msg, ")")
	if open < 0 || closing <= open+1 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : closing]))
	if convErr != nil || code < 100 || code > 599 {
		return 0
	}
	return code
}

// Redact removes bot tokens from an error message.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
