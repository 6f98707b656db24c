// Package middleware contains the Gin middleware chain in front of the
// webhook and operational endpoints.
//
// This file implements the dual-axis webhook rate limiter. Each request is
// counted against two independent fixed windows in Redis: one keyed by the
// sender's phone number (hashed before it becomes a key) and one keyed by
// the client IP. Counters use INCR with an EXPIRE on first increment, so a
// window starts with the first message in it.
//
// The limiter fails open: when the counter store is unreachable the request
// proceeds and the failure is audit-logged. Losing rate limiting briefly is
// preferable to dropping customer messages.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/privacy"
	"github.com/tbourn/go-whatsapp-gateway/internal/twiml"
)

// Rate limit reply texts, sent as TwiML so the sender sees them in WhatsApp.
const (
	phoneLimitMessage = "Has enviado demasiados mensajes. Por favor, espera un momento antes de escribir de nuevo."
	ipLimitMessage    = "Hemos recibido demasiadas solicitudes desde tu red. Por favor, inténtalo de nuevo en unos minutos."
)

// RateLimitOptions configures a RateLimiter.
type RateLimitOptions struct {
	// PhoneLimit and IPLimit are the maximum requests per window on each axis.
	PhoneLimit int
	IPLimit    int
	// Window and IPWindow are the fixed window lengths per axis.
	Window   time.Duration
	IPWindow time.Duration
}

// RateLimiter enforces per-phone and per-IP fixed windows backed by a cache
// Store.
type RateLimiter struct {
	store  cache.Store
	hasher *privacy.Hasher
	opt    RateLimitOptions
}

// NewRateLimiter constructs a RateLimiter. The hasher keys the phone axis so
// raw numbers never reach the counter store.
func NewRateLimiter(store cache.Store, hasher *privacy.Hasher, opt RateLimitOptions) *RateLimiter {
	if opt.PhoneLimit <= 0 {
		opt.PhoneLimit = 10
	}
	if opt.IPLimit <= 0 {
		opt.IPLimit = 30
	}
	if opt.Window <= 0 {
		opt.Window = time.Minute
	}
	if opt.IPWindow <= 0 {
		opt.IPWindow = opt.Window
	}
	return &RateLimiter{store: store, hasher: hasher, opt: opt}
}

// axisResult is the outcome of counting one request on one axis.
type axisResult struct {
	allowed   bool
	remaining int
	reset     time.Time
	failed    bool // store error, axis is skipped
}

// count increments the counter at key and derives the axis outcome. The
// EXPIRE is only issued when this increment opened the window.
func (rl *RateLimiter) count(ctx context.Context, key string, limit int, window time.Duration) axisResult {
	n, err := rl.store.Incr(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("rate limit store unavailable, failing open")
		return axisResult{allowed: true, remaining: limit, failed: true}
	}
	if n == 1 {
		if _, err := rl.store.Expire(ctx, key, window); err != nil {
			log.Error().Err(err).Str("key", key).Msg("rate limit expiry not set, failing open")
			return axisResult{allowed: true, remaining: limit, failed: true}
		}
	}

	reset := time.Now().Add(window)
	if ttl, err := rl.store.TTL(ctx, key); err == nil && ttl > 0 {
		reset = time.Now().Add(ttl)
	}

	remaining := limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return axisResult{allowed: n <= int64(limit), remaining: remaining, reset: reset}
}

// Handler returns the Gin middleware enforcing both axes. Limit headers are
// attached to every response, allowed or not. When a limit is exceeded the
// request is answered 429 with a TwiML apology; the text differs per axis so
// an individual sender and a noisy network read different messages.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		phone := c.Request.PostFormValue("From")
		ip := c.ClientIP()

		phoneRes := axisResult{allowed: true, remaining: rl.opt.PhoneLimit, reset: time.Now().Add(rl.opt.Window)}
		if phone != "" {
			key := "ratelimit:phone:" + rl.hasher.HashIdentifier(phone)
			phoneRes = rl.count(ctx, key, rl.opt.PhoneLimit, rl.opt.Window)
		}
		ipRes := rl.count(ctx, "ratelimit:ip:"+ip, rl.opt.IPLimit, rl.opt.IPWindow)

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.opt.PhoneLimit))
		h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", phoneRes.remaining))
		h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", phoneRes.reset.Unix()))
		h.Set("X-RateLimit-IP-Limit", fmt.Sprintf("%d", rl.opt.IPLimit))
		h.Set("X-RateLimit-IP-Remaining", fmt.Sprintf("%d", ipRes.remaining))

		switch {
		case !phoneRes.allowed:
			rateLimited.WithLabelValues("phone").Inc()
			log.Warn().
				Str("sender", rl.hasher.HashIdentifier(phone)).
				Msg("phone rate limit exceeded")
			abortWithTwiML(c, phoneLimitMessage)
		case !ipRes.allowed:
			rateLimited.WithLabelValues("ip").Inc()
			log.Warn().
				Str("remote_ip", ip).
				Msg("ip rate limit exceeded")
			abortWithTwiML(c, ipLimitMessage)
		default:
			c.Next()
		}
	}
}

// abortWithTwiML writes a 429 TwiML apology and stops the chain.
func abortWithTwiML(c *gin.Context, body string) {
	c.Header("Content-Type", twiml.ContentType)
	c.String(http.StatusTooManyRequests, twiml.Message(body))
	c.Abort()
}
