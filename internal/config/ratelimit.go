package config

import "time"

// RateLimitConfig parameterizes the Redis token bucket.  Capacity tokens are
// available per key and RefillTokens are added every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user, route, ip_user, ip_route, user_route or ip_user_route
	Prefix         string
	Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "meal:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

// PaymentRateLimit is a stricter bucket for the payment endpoints, which
// each cost a gateway round trip.
func PaymentRateLimit(base RateLimitConfig) RateLimitConfig {
	pc := base
	pc.Capacity = envInt("PAYMENT_RATE_LIMIT_CAPACITY", 10)
	pc.RefillInterval = envDur("PAYMENT_RATE_LIMIT_REFILL_INTERVAL", 6*time.Second)
	pc.Prefix = base.Prefix + ":pay"
	if pc.Capacity < 1 {
		pc.Capacity = 1
	}
	if minTTL := 5 * pc.RefillInterval; pc.TTL < minTTL {
		pc.TTL = minTTL
	}
	return pc
}
