// Package httpapi wires the HTTP transport (Gin) to application services
// and middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, CORS, and
// security headers, and mounts the webhook pipeline with its route-local
// gates.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The webhook gates run in a fixed order: media type, signature,
//     rate limits, payload validation, handler
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/config"
	"github.com/tbourn/go-whatsapp-gateway/internal/http/handlers"
	"github.com/tbourn/go-whatsapp-gateway/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-gateway/internal/llm"
	"github.com/tbourn/go-whatsapp-gateway/internal/privacy"
	"github.com/tbourn/go-whatsapp-gateway/internal/services"
)

// Deps carries the external dependencies the router wires together.
type Deps struct {
	DB        *gorm.DB
	Store     cache.Store
	LLM       handlers.Completer
	Hasher    *privacy.Hasher
	StartedAt time.Time
}

// RegisterRoutes attaches all middleware and endpoints to the Gin engine.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//
// The webhook-specific gates (media type, Twilio signature, rate limits,
// payload validation) are route-local so /health and /metrics stay cheap.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())

	// Twilio form payloads are small; 64 KiB leaves headroom for ten media
	// URLs and keeps abusive bodies out early.
	r.Use(limitBody(64 << 10))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registerCORS(r, cfg)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.IsProduction(),
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: services ← repo/db/cache
	ctxCache := cache.NewContextCache(deps.Store)
	userSvc := services.NewUserService(deps.DB)
	convSvc := services.NewConversationService(deps.DB, ctxCache)
	msgSvc := services.NewMessageService(deps.DB, ctxCache)

	webhook := handlers.NewWebhookHandler(userSvc, convSvc, msgSvc, deps.LLM)
	webhook.SystemPrompt = cfg.Anthropic.SystemPrompt
	health := handlers.NewHealthHandler(deps.DB, deps.Store, cfg.Env, cfg.Version)
	if !deps.StartedAt.IsZero() {
		health.StartedAt = deps.StartedAt
	}

	r.GET("/health", health.Health)

	limiter := middleware.NewRateLimiter(deps.Store, deps.Hasher, middleware.RateLimitOptions{
		PhoneLimit: cfg.RateLimit.MaxRequests,
		IPLimit:    cfg.RateLimit.MaxIPRequests,
		Window:     cfg.RateLimit.Window,
		IPWindow:   cfg.RateLimit.IPWindow,
	})

	r.POST("/webhook/whatsapp",
		middleware.RequireFormContentType(),
		middleware.VerifyTwilioSignature(middleware.SignatureOptions{
			AuthToken:     cfg.Twilio.AuthToken,
			SkipWhenUnset: cfg.IsDevelopment(),
		}),
		limiter.Handler(),
		middleware.ValidateWebhookPayload(),
		webhook.Receive,
	)
}

// NewCompleter builds the production LLM client from config.
func NewCompleter(cfg config.Config) handlers.Completer {
	return llm.New(llm.Options{
		APIKey:         cfg.Anthropic.APIKey,
		Model:          cfg.Anthropic.Model,
		MaxTokens:      int64(cfg.Anthropic.MaxOutputTokens),
		ContextBudget:  cfg.Anthropic.MaxContextTokens,
		Temperature:    cfg.Anthropic.Temperature,
		AttemptTimeout: cfg.Anthropic.Timeout,
	})
}

// registerCORS applies the CORS posture: allow-all when no origins are
// configured (webhooks are server-to-server and carry no cookies), else the
// configured allowlist.
func registerCORS(r *gin.Engine, cfg config.Config) {
	common := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Twilio-Signature"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		common.AllowAllOrigins = true
	} else {
		common.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(common))
}

// limitBody caps the request body size using http.MaxBytesReader; oversized
// bodies error on first read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
