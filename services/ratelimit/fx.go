package ratelimit

import (
	"videoreach-engine/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewLimiter),
)

func init() {
	prometheus.MustRegister(limiterAllowed, limiterDenied)
}

type Params struct {
	fx.In

	Cfg   *config.Config
	Redis *redis.Client `optional:"true"`
}

// NewLimiter prefers the Redis window when a client is wired (shared across
// replicas); otherwise it falls back to the in-process window.
func NewLimiter(p Params) Limiter {
	cfg := p.Cfg
	if p.Redis != nil {
		return NewRedisLimiter(p.Redis, cfg.RateLimit.Window, cfg.RateLimit.Fallback, cfg.RateLimit.Limits)
	}

	opts := make([]WindowOption, 0, len(cfg.RateLimit.Limits))
	for action, limit := range cfg.RateLimit.Limits {
		opts = append(opts, WithActionLimit(action, limit))
	}
	return NewWindowLimiter(cfg.RateLimit.Window, cfg.RateLimit.Fallback, opts...)
}
