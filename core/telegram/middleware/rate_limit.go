package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	coreconfig "github.com/m3rciful/roombot/core/config"
	"github.com/m3rciful/roombot/core/logger"
	tghelpers "github.com/m3rciful/roombot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the steady-state spacing between updates from one user.
	Interval time.Duration
	// Burst is the number of updates accepted back to back; 0 -> 1.
	Burst int
	// MaxUsers bounds the number of tracked limiters; 0 -> 10000.
	MaxUsers int
	// Skip exempts update kinds (see UpdateKind) from limiting.
	Skip      func(kind string) bool
	OnLimited tele.HandlerFunc
}

// RateLimitMiddleware returns a middleware that applies a token bucket per
// user. Idle limiters are evicted after a few intervals.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = 10000
	}
	idle := 10 * opts.Interval
	if idle < time.Minute {
		idle = time.Minute
	}
	var (
		mu       sync.Mutex
		limiters = expirable.NewLRU[int64, *rate.Limiter](opts.MaxUsers, nil, idle)
	)
	limiterFor := func(userID int64) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters.Get(userID); ok {
			return l
		}
		l := rate.NewLimiter(rate.Every(opts.Interval), opts.Burst)
		limiters.Add(userID, l)
		return l
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if opts.Skip != nil && opts.Skip(UpdateKind(c.Update())) {
				return next(c)
			}

			if limiterFor(user.ID).Allow() {
				return next(c)
			}

			markLimited(c)
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Int64("user_id", user.ID),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

// UpdateKind names the update the way rate_limit.exclude_updates does.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	case upd.Query != nil:
		return coreconfig.UpdateInlineQuery
	}
	return "other"
}
