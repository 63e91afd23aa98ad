package middleware

import tele "gopkg.in/telebot.v4"

const limitedKey = "rate_limited"

// Update statuses passed to the observer.
const (
	StatusOK      = "ok"
	StatusFailed  = "fail"
	StatusLimited = "limited"
)

// UpdateMetricsMiddleware reports every update to observe with its kind
// (see UpdateKind) and how handling ended. It must run outside the rate
// limiter to see limited updates.
func UpdateMetricsMiddleware(observe func(kind, status string)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if observe == nil {
			return next
		}
		return func(c tele.Context) error {
			err := next(c)
			status := StatusOK
			switch {
			case err != nil:
				status = StatusFailed
			case c.Get(limitedKey) == true:
				status = StatusLimited
			}
			observe(UpdateKind(c.Update()), status)
			return err
		}
	}
}

func markLimited(c tele.Context) {
	c.Set(limitedKey, true)
}
