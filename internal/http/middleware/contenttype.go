// Package middleware contains the Gin middleware chain in front of the
// webhook and operational endpoints.
//
// This file gates the webhook route on the form media type. Twilio posts
// application/x-www-form-urlencoded; anything else is refused before the
// body is touched, so the signature verifier and validator downstream can
// assume a parseable form.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const formContentType = "application/x-www-form-urlencoded"

// RequireFormContentType rejects requests whose Content-Type is not the
// urlencoded form type with a 415 JSON error. Matching is case-insensitive
// and tolerates parameters such as charset.
func RequireFormContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := strings.ToLower(c.GetHeader("Content-Type"))
		if !strings.Contains(ct, formContentType) {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error":   "Unsupported Media Type",
				"message": "Expected application/x-www-form-urlencoded",
			})
			return
		}
		c.Next()
	}
}
