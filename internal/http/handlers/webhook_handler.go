// Package handlers – webhook
//
// This file implements the inbound WhatsApp webhook. By the time the handler
// runs, the middleware chain has already enforced the media type, verified
// the Twilio signature, applied both rate limit axes, and validated the
// payload into a typed InboundMessage.
//
// The handler resolves the sender and their active conversation, persists
// the inbound message (idempotently on the Twilio SID), asks the model for a
// reply over the recent context window, persists the reply with its usage
// metrics, and answers with TwiML. Processing failures after the gates are
// answered 200 with a localized apology: a non-2xx would trigger Twilio
// retries and surface a delivery error to the sender.
package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/text/language"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
	"github.com/tbourn/go-whatsapp-gateway/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-gateway/internal/llm"
	"github.com/tbourn/go-whatsapp-gateway/internal/services"
)

// webhookMessages counts webhook deliveries by outcome: ok, duplicate,
// empty, or error.
var webhookMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_messages_total",
		Help: "Inbound webhook deliveries by processing outcome.",
	},
	[]string{"outcome"},
)

// apologies per supported reply language. Spanish is the default audience.
var apologies = map[language.Tag]string{
	language.Spanish: "Lo sentimos, ha ocurrido un error al procesar tu mensaje. Por favor, inténtalo de nuevo más tarde.",
	language.English: "Sorry, something went wrong while processing your message. Please try again later.",
}

var (
	apologyTags    = []language.Tag{language.Spanish, language.English}
	apologyMatcher = language.NewMatcher(apologyTags)
)

// apologyFor picks the apology text for a stored language code, falling back
// to Spanish for anything unrecognized.
func apologyFor(lang string) string {
	_, idx := language.MatchStrings(apologyMatcher, lang)
	return apologies[apologyTags[idx]]
}

// Completer is the LLM surface the webhook needs. Tests substitute a
// scripted implementation.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message) (*llm.Result, error)
}

// WebhookHandler serves POST /webhook/whatsapp.
type WebhookHandler struct {
	Users         *services.UserService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	LLM           Completer
	// SystemPrompt seeds the model conversation when set.
	SystemPrompt string
}

// NewWebhookHandler wires the webhook handler.
func NewWebhookHandler(users *services.UserService, convs *services.ConversationService, msgs *services.MessageService, completer Completer) *WebhookHandler {
	return &WebhookHandler{Users: users, Conversations: convs, Messages: msgs, LLM: completer}
}

// Receive processes one webhook delivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	tr := otel.Tracer("handlers/Webhook")
	ctx, span := tr.Start(c.Request.Context(), "Receive")
	defer span.End()

	lg := middleware.LoggerFrom(c)

	inbound, ok := middleware.InboundFrom(c)
	if !ok {
		// The validator always runs first on this route.
		lg.Error().Msg("webhook handler reached without validated payload")
		webhookMessages.WithLabelValues("error").Inc()
		replyTwiML(c, 200, apologies[language.Spanish])
		return
	}

	// Nothing to answer: reply with the cannot-process apology and stop
	// before touching any store.
	if strings.TrimSpace(inbound.Body) == "" && len(inbound.Media) == 0 {
		webhookMessages.WithLabelValues("empty").Inc()
		replyTwiML(c, 200, middleware.ValidationReply)
		return
	}

	phone := strings.TrimPrefix(inbound.From, "whatsapp:")

	user, err := h.Users.GetOrCreate(ctx, phone, inbound.ProfileName)
	if err != nil {
		h.apologize(c, lg, "es", "user resolution failed", err)
		return
	}

	conv, err := h.Conversations.GetOrCreate(ctx, user.ID)
	if err != nil {
		h.apologize(c, lg, user.Language, "conversation resolution failed", err)
		return
	}

	sid := inbound.MessageSid
	saved, created, err := h.Messages.SaveUser(ctx, conv.ID, inbound.Body, &sid, mediaMetadata(inbound.Media))
	if err != nil {
		h.apologize(c, lg, user.Language, "message persistence failed", err)
		return
	}
	if !created {
		// Twilio redelivered a SID we already answered; never bill a second
		// completion for it.
		lg.Info().Str("message_id", saved.ID).Msg("duplicate delivery acknowledged")
		webhookMessages.WithLabelValues("duplicate").Inc()
		replyEmptyTwiML(c)
		return
	}

	recent, err := h.Messages.RecentContext(ctx, conv.ID, services.ContextWindow)
	if err != nil {
		h.apologize(c, lg, user.Language, "context retrieval failed", err)
		return
	}

	res, err := h.LLM.Complete(ctx, h.buildPrompt(recent, inbound.Body))
	if err != nil {
		lg.Error().Err(err).Str("kind", string(llm.KindOf(err))).Msg("completion failed")
		webhookMessages.WithLabelValues("error").Inc()
		replyTwiML(c, 200, apologyFor(user.Language))
		return
	}

	if _, err := h.Messages.SaveAssistant(ctx, conv.ID, res.Content, services.AssistantMetrics{
		TokensUsed: res.TokensUsed,
		LatencyMs:  int(res.LatencyMs),
		Model:      res.Model,
		StopReason: res.StopReason,
		CostUSD:    res.Cost,
	}); err != nil {
		h.apologize(c, lg, user.Language, "reply persistence failed", err)
		return
	}

	webhookMessages.WithLabelValues("ok").Inc()
	replyTwiML(c, 200, res.Content)
}

// apologize logs the failure server-side and answers 200 with a localized
// apology. Internals never reach the response body.
func (h *WebhookHandler) apologize(c *gin.Context, lg *zerolog.Logger, lang, msg string, err error) {
	lg.Error().Err(err).Msg(msg)
	webhookMessages.WithLabelValues("error").Inc()
	replyTwiML(c, 200, apologyFor(lang))
}

// buildPrompt maps the stored context window onto model messages, lowering
// the stored role constants and dropping blank turns. The just-persisted
// user message is appended when the window missed it, so the prompt always
// ends with the user.
func (h *WebhookHandler) buildPrompt(recent []domain.Message, body string) []llm.Message {
	msgs := make([]llm.Message, 0, len(recent)+2)
	if h.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: h.SystemPrompt})
	}
	for _, m := range recent {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: lowerRole(m.Role), Content: m.Content})
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != llm.RoleUser {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: body})
	}
	return msgs
}

// lowerRole maps stored role constants to API roles.
func lowerRole(role string) string {
	switch role {
	case domain.RoleAssistant:
		return llm.RoleAssistant
	case domain.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}

// mediaMetadata flattens attachment references into message metadata.
func mediaMetadata(media []middleware.MediaItem) map[string]any {
	if len(media) == 0 {
		return nil
	}
	meta := make(map[string]any, len(media)*2+1)
	meta["num_media"] = len(media)
	for i, m := range media {
		prefix := "media_" + strconv.Itoa(i)
		meta[prefix+"_url"] = m.URL
		if m.ContentType != "" {
			meta[prefix+"_content_type"] = m.ContentType
		}
	}
	return meta
}
