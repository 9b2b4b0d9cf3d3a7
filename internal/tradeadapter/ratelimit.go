package tradeadapter

import "golang.org/x/time/rate"

// RateLimiter groups per-category request pacing using golang.org/x/time/rate,
// one limiter per operation category (order placement, cancellation,
// read-only queries).
type RateLimiter struct {
	Order  *rate.Limiter
	Cancel *rate.Limiter
	Query  *rate.Limiter
}

// NewRateLimiter builds category limiters at the given sustained
// requests-per-second rate, each with a burst equal to one second's worth
// of traffic at that rate (minimum 1).
func NewRateLimiter(orderPerSec, cancelPerSec, queryPerSec float64) *RateLimiter {
	return &RateLimiter{
		Order:  rate.NewLimiter(rate.Limit(orderPerSec), burstFor(orderPerSec)),
		Cancel: rate.NewLimiter(rate.Limit(cancelPerSec), burstFor(cancelPerSec)),
		Query:  rate.NewLimiter(rate.Limit(queryPerSec), burstFor(queryPerSec)),
	}
}

func burstFor(perSec float64) int {
	b := int(perSec)
	if b < 1 {
		return 1
	}
	return b
}
