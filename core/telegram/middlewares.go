package telegram

import (
	"time"

	coreconfig "github.com/m3rciful/roombot/core/config"
	"github.com/m3rciful/roombot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareHooks connects the shared chain to the application.
type MiddlewareHooks struct {
	// OnLimited answers updates dropped by the rate limiter.
	OnLimited tele.HandlerFunc
	// ObserveUpdate receives the kind and status of every update.
	ObserveUpdate func(kind, status string)
}

// DefaultMiddlewares builds the shared chain in the order updates pass it:
// panic recovery, request logging, update metrics, then the per-user rate
// limit when one is configured.
func DefaultMiddlewares(cfg *coreconfig.Config, hooks MiddlewareHooks) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.UpdateMetricsMiddleware(hooks.ObserveUpdate)},
	}

	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		limits := cfg.RateLimit
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  time.Duration(limits.IntervalMS) * time.Millisecond,
				Burst:     limits.Burst,
				Skip:      limits.Excludes,
				OnLimited: hooks.OnLimited,
			}),
		})
	}
	return mws
}
