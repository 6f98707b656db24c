package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func validForm() url.Values {
	return url.Values{
		"From":       {"whatsapp:+14155550001"},
		"Body":       {"Hola"},
		"MessageSid": {testSID},
	}
}

// validatedEngine exposes what the validator stored in the context.
func validatedEngine(t *testing.T, got **InboundMessage) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/whatsapp", ValidateWebhookPayload(), func(c *gin.Context) {
		m, ok := InboundFrom(c)
		if !ok {
			t.Fatalf("validated payload missing from context")
		}
		*got = m
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestValidateWebhookPayload_Valid(t *testing.T) {
	var got *InboundMessage
	r := validatedEngine(t, &got)

	form := validForm()
	form.Set("ProfileName", "Ana")
	w := postForm(r, form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("valid payload -> %d: %s", w.Code, w.Body.String())
	}
	if got.From != "whatsapp:+14155550001" || got.Body != "Hola" || got.MessageSid != testSID {
		t.Fatalf("payload = %+v", got)
	}
	if got.ProfileName != "Ana" {
		t.Fatalf("ProfileName = %q", got.ProfileName)
	}
	if len(got.Media) != 0 {
		t.Fatalf("unexpected media: %+v", got.Media)
	}
}

func TestValidateWebhookPayload_EmptyBodyAllowed(t *testing.T) {
	var got *InboundMessage
	r := validatedEngine(t, &got)

	form := validForm()
	form.Set("Body", "")
	w := postForm(r, form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("empty body -> %d, want 200", w.Code)
	}
	if got.Body != "" {
		t.Fatalf("Body = %q", got.Body)
	}
}

func TestValidateWebhookPayload_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(url.Values)
	}{
		{"missing From", func(f url.Values) { f.Del("From") }},
		{"bad From channel", func(f url.Values) { f.Set("From", "sms:+14155550001") }},
		{"From without plus", func(f url.Values) { f.Set("From", "whatsapp:14155550001") }},
		{"missing Body key", func(f url.Values) { f.Del("Body") }},
		{"missing MessageSid", func(f url.Values) { f.Del("MessageSid") }},
		{"short MessageSid", func(f url.Values) { f.Set("MessageSid", "SMabc") }},
		{"lowercase SID prefix", func(f url.Values) { f.Set("MessageSid", strings.ToLower(testSID)) }},
		{"non-numeric NumMedia", func(f url.Values) { f.Set("NumMedia", "abc") }},
		{"negative NumMedia", func(f url.Values) { f.Set("NumMedia", "-1") }},
		{"malformed MediaUrl", func(f url.Values) {
			f.Set("NumMedia", "1")
			f.Set("MediaUrl0", "not a url")
		}},
		{"non-http MediaUrl scheme", func(f url.Values) {
			f.Set("NumMedia", "1")
			f.Set("MediaUrl0", "ftp://media.example.com/a.jpg")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got *InboundMessage
			r := validatedEngine(t, &got)

			form := validForm()
			tc.mutate(form)
			w := postForm(r, form.Encode())
			if w.Code != http.StatusBadRequest {
				t.Fatalf("-> %d, want 400", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/xml") {
				t.Fatalf("Content-Type = %q, want TwiML", ct)
			}
			if !strings.Contains(w.Body.String(), "no pudimos procesar") {
				t.Fatalf("body = %s", w.Body.String())
			}
			if got != nil {
				t.Fatalf("handler ran on invalid payload")
			}
		})
	}
}

func TestValidateWebhookPayload_Media(t *testing.T) {
	var got *InboundMessage
	r := validatedEngine(t, &got)

	form := validForm()
	form.Set("NumMedia", "2")
	form.Set("MediaUrl0", "https://media.example.com/a.jpg")
	form.Set("MediaContentType0", "image/jpeg")
	form.Set("MediaUrl1", "https://media.example.com/b.ogg")
	form.Set("MediaContentType1", "audio/ogg")
	form.Set("MediaUrl2", "https://media.example.com/ignored.png")

	w := postForm(r, form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("media payload -> %d", w.Code)
	}
	if len(got.Media) != 2 {
		t.Fatalf("media count = %d, want 2 (NumMedia bound)", len(got.Media))
	}
	if got.Media[0].URL != "https://media.example.com/a.jpg" || got.Media[0].ContentType != "image/jpeg" {
		t.Fatalf("media[0] = %+v", got.Media[0])
	}
	if got.Media[1].ContentType != "audio/ogg" {
		t.Fatalf("media[1] = %+v", got.Media[1])
	}
}

func TestValidateWebhookPayload_MediaGapStops(t *testing.T) {
	var got *InboundMessage
	r := validatedEngine(t, &got)

	form := validForm()
	form.Set("MediaUrl0", "https://media.example.com/a.jpg")
	form.Set("MediaUrl2", "https://media.example.com/c.jpg")

	w := postForm(r, form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("-> %d", w.Code)
	}
	if len(got.Media) != 1 {
		t.Fatalf("media count = %d, want 1 (stop at first gap)", len(got.Media))
	}
}
