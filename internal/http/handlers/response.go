// Package handlers provides the HTTP handlers of the gateway: the Twilio
// webhook and the operational endpoints.
//
// This file defines the response utilities. The gateway speaks two formats:
// JSON envelopes for operational endpoints and middleware rejections, and
// TwiML for everything Twilio forwards to the sender. Webhook processing
// failures are always answered 200 with an apology document, because a
// non-2xx would make Twilio retry and the sender would see a delivery error
// instead of a reply.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-whatsapp-gateway/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-gateway/internal/twiml"
)

// ErrorResponse is the JSON error envelope of the operational endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Human-readable message (safe to show to users)
	Message string `json:"message"`
}

// fail aborts the request with a structured JSON error. Server errors are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), used by router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// replyTwiML writes a TwiML document carrying body as the outbound message.
func replyTwiML(c *gin.Context, status int, body string) {
	c.Header("Content-Type", twiml.ContentType)
	c.String(status, twiml.Message(body))
}

// replyEmptyTwiML acknowledges a delivery without sending anything back.
func replyEmptyTwiML(c *gin.Context) {
	c.Header("Content-Type", twiml.ContentType)
	c.String(http.StatusOK, twiml.Empty())
}
