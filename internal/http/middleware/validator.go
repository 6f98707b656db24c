// Package middleware contains the Gin middleware chain in front of the
// webhook and operational endpoints.
//
// This file validates the Twilio form payload and hands the handler a typed
// InboundMessage. Twilio is a well-behaved sender, so a validation failure
// here means either a misconfigured integration or a forged request that
// somehow carried a valid signature; issues are logged at warn level with
// field names only, never values.
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-whatsapp-gateway/internal/twiml"
)

// inboundKey is the Gin context key holding the validated InboundMessage.
const inboundKey = "inboundMessage"

// ValidationReply is sent when the payload is malformed or carries nothing to
// answer. Twilio forwards it to the sender, so it apologizes rather than
// explains.
const ValidationReply = "Lo sentimos, no pudimos procesar tu mensaje. Por favor, inténtalo de nuevo."

var (
	fromRE = regexp.MustCompile(`^whatsapp:\+\d+$`)
	sidRE  = regexp.MustCompile(`^[A-Z]{2}[a-z0-9]{32}$`)
)

// MediaItem is one attachment reference from the webhook payload.
type MediaItem struct {
	URL         string
	ContentType string
}

// InboundMessage is the validated webhook payload.
type InboundMessage struct {
	// From is the raw sender address, e.g. "whatsapp:+14155550001".
	From string
	// Body is the message text. Present on every delivery but may be empty,
	// e.g. for media-only messages.
	Body string
	// MessageSid is Twilio's delivery identifier, the idempotency key.
	MessageSid string
	// ProfileName is the sender's WhatsApp display name, when shared.
	ProfileName string
	// Media lists up to ten attachments.
	Media []MediaItem
}

// ValidateWebhookPayload checks the form fields and stores the typed payload
// in the Gin context for the handler. Malformed payloads are answered 400
// with a TwiML apology.
func ValidateWebhookPayload() gin.HandlerFunc {
	return func(c *gin.Context) {
		var issues []string

		from := c.PostForm("From")
		if !fromRE.MatchString(from) {
			issues = append(issues, "From")
		}

		// Body must be present as a key; an empty value is legal.
		body, hasBody := c.GetPostForm("Body")
		if !hasBody {
			issues = append(issues, "Body")
		}

		sid := c.PostForm("MessageSid")
		if !sidRE.MatchString(sid) {
			issues = append(issues, "MessageSid")
		}

		media, mediaIssues := collectMedia(c)
		issues = append(issues, mediaIssues...)

		if len(issues) > 0 {
			LoggerFrom(c).Warn().
				Strs("invalid_fields", issues).
				Msg("webhook payload rejected")
			c.Header("Content-Type", twiml.ContentType)
			c.String(http.StatusBadRequest, twiml.Message(ValidationReply))
			c.Abort()
			return
		}

		msg := InboundMessage{
			From:        from,
			Body:        body,
			MessageSid:  sid,
			ProfileName: c.PostForm("ProfileName"),
			Media:       media,
		}
		c.Set(inboundKey, &msg)
		c.Next()
	}
}

// InboundFrom returns the validated payload stored by ValidateWebhookPayload.
func InboundFrom(c *gin.Context) (*InboundMessage, bool) {
	v, ok := c.Get(inboundKey)
	if !ok {
		return nil, false
	}
	m, ok := v.(*InboundMessage)
	return m, ok
}

// collectMedia reads MediaUrl0..MediaUrl9 (with their content types), bounded
// by NumMedia when Twilio supplies it. A NumMedia that is not a non-negative
// integer, or a MediaUrl that is not an absolute http(s) URL, is reported as
// a validation issue.
func collectMedia(c *gin.Context) ([]MediaItem, []string) {
	var issues []string

	max := 10
	if raw, ok := c.GetPostForm("NumMedia"); ok {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil || n < 0:
			issues = append(issues, "NumMedia")
		case n < max:
			max = n
		}
	}

	var media []MediaItem
	for i := 0; i < max; i++ {
		raw := c.PostForm("MediaUrl" + strconv.Itoa(i))
		if raw == "" {
			break
		}
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, "MediaUrl"+strconv.Itoa(i))
			continue
		}
		media = append(media, MediaItem{
			URL:         raw,
			ContentType: c.PostForm("MediaContentType" + strconv.Itoa(i)),
		})
	}
	return media, issues
}
