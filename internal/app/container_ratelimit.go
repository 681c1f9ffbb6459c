package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/http/middleware/ratelimit"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewTokenBucketLimiter(clock, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

type locationThrottleOut struct {
	dig.Out
	Limiter ratelimit.Limiter `name:"location_throttle"`
}

// newLocationThrottle limits position reports per courier; extra reports are dropped.
func newLocationThrottle(cfg *config.Config, clock ratelimit.Clock) locationThrottleOut {
	loc := cfg.Location
	if loc.UpdatesPerSecond <= 0 {
		return locationThrottleOut{Limiter: ratelimit.NopLimiter{}}
	}
	return locationThrottleOut{Limiter: ratelimit.NewTokenBucketLimiter(clock, ratelimit.Config{
		Rate:       loc.UpdatesPerSecond,
		Burst:      loc.Burst,
		TTL:        loc.TTL,
		MaxBuckets: cfg.RateLimit.MaxBuckets,
	})}
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.RealClock{}
}

type rateLimitIn struct {
	dig.In
	Logger  logx.Logger
	Counter prometheus.Counter `name:"rate_limit_exceeded_total"`
	Limiter ratelimit.Limiter
}

func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Counter, in.Limiter)
}
