// Package handlers – health
//
// This file implements GET /health. The endpoint probes the database, the
// Redis counter/context store, and process memory, and reports 200 when all
// checks pass or 503 when any dependency is down. Monitoring and container
// orchestration consume the JSON body; no check result leaks connection
// details.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/sysutil"
)

// memoryAlertBytes flags the memory check as degraded above this heap size.
const memoryAlertBytes = 1 << 30 // 1 GiB

// CheckResult is one dependency probe in the health report.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the health report body.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Uptime      string                 `json:"uptime"`
	Environment string                 `json:"environment"`
	Version     string                 `json:"version"`
	Checks      map[string]CheckResult `json:"checks"`
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	DB          *gorm.DB
	Cache       cache.Store
	Environment string
	Version     string
	StartedAt   time.Time
}

// NewHealthHandler wires the health endpoint.
func NewHealthHandler(db *gorm.DB, store cache.Store, env, version string) *HealthHandler {
	return &HealthHandler{DB: db, Cache: store, Environment: env, Version: version, StartedAt: time.Now()}
}

// Health runs all dependency probes and reports the aggregate status.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := map[string]CheckResult{
		"database": h.checkDatabase(c),
		"redis":    h.checkRedis(c),
		"memory":   checkMemory(),
	}

	status := "healthy"
	code := http.StatusOK
	for _, res := range checks {
		if res.Status == "unhealthy" {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.StartedAt).Round(time.Second).String(),
		Environment: h.Environment,
		Version:     h.Version,
		Checks:      checks,
	})
}

func (h *HealthHandler) checkDatabase(c *gin.Context) CheckResult {
	if h.DB == nil {
		return CheckResult{Status: "unhealthy", Error: "not configured"}
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		return CheckResult{Status: "unhealthy", Error: "connection pool unavailable"}
	}
	start := time.Now()
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		return CheckResult{Status: "unhealthy", Error: "ping failed"}
	}
	return CheckResult{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
}

func (h *HealthHandler) checkRedis(c *gin.Context) CheckResult {
	if h.Cache == nil {
		return CheckResult{Status: "unhealthy", Error: "not configured"}
	}
	start := time.Now()
	if err := h.Cache.Ping(c.Request.Context()); err != nil {
		return CheckResult{Status: "unhealthy", Error: "ping failed"}
	}
	return CheckResult{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
}

func checkMemory() CheckResult {
	heap := sysutil.HeapBytes()
	if heap > memoryAlertBytes {
		return CheckResult{Status: "degraded", Error: "heap at " + sysutil.FormatBytes(heap)}
	}
	return CheckResult{Status: "healthy"}
}
