// Package services – MessageService
//
// This file implements the MessageService, which persists conversation turns
// and serves the recent-context window. User messages are idempotent on the
// Twilio message SID; assistant messages carry token usage and latency
// metrics. Every successful append advances the conversation's last-activity
// timestamp and drops the cached context document.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/rs/zerolog/log"
	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
	"github.com/tbourn/go-whatsapp-gateway/internal/repo"
)

// AssistantMetrics carries the usage data persisted with assistant replies.
type AssistantMetrics struct {
	TokensUsed int
	LatencyMs  int
	Model      string
	StopReason string
	CostUSD    float64
}

// MessageService persists and retrieves conversation messages.
type MessageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache serves and invalidates context documents. Optional.
	Cache *cache.ContextCache
	// Window is the recent-context size; zero means ContextWindow.
	Window int
}

// NewMessageService constructs a MessageService with the default context
// window.
func NewMessageService(db *gorm.DB, cc *cache.ContextCache) *MessageService {
	return &MessageService{DB: db, Cache: cc, Window: ContextWindow}
}

// SaveUser appends an inbound user message. When providerSID already exists
// the previously stored message is returned with created=false; the webhook
// handler uses that to skip the duplicate delivery without a second LLM
// call. The insert race on the SID resolves the same way.
func (s *MessageService) SaveUser(ctx context.Context, conversationID, content string, providerSID *string, metadata map[string]any) (*domain.Message, bool, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SaveUser",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if strings.TrimSpace(content) == "" && len(metadata) == 0 {
		return nil, false, ErrEmptyContent
	}

	if providerSID != nil && *providerSID != "" {
		existing, err := repo.FindMessageByProviderSID(ctx, s.DB, *providerSID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	m, err := repo.CreateMessage(ctx, s.DB, repo.CreateMessageParams{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		ProviderSID:    providerSID,
		Metadata:       metadata,
	})
	if err != nil {
		if repo.IsDuplicate(err) && providerSID != nil {
			// Lost the insert race; the winner is the message of record.
			existing, ferr := repo.FindMessageByProviderSID(ctx, s.DB, *providerSID)
			if ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.afterAppend(ctx, m)
	return m, true, nil
}

// SaveAssistant appends a model reply with its usage metrics.
func (s *MessageService) SaveAssistant(ctx context.Context, conversationID, content string, metrics AssistantMetrics) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SaveAssistant",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	var meta map[string]any
	if metrics.Model != "" || metrics.StopReason != "" || metrics.CostUSD > 0 {
		meta = map[string]any{}
		if metrics.Model != "" {
			meta["model"] = metrics.Model
		}
		if metrics.StopReason != "" {
			meta["stop_reason"] = metrics.StopReason
		}
		if metrics.CostUSD > 0 {
			meta["cost_usd"] = metrics.CostUSD
		}
	}

	m, err := repo.CreateMessage(ctx, s.DB, repo.CreateMessageParams{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        content,
		Metadata:       meta,
		TokensUsed:     &metrics.TokensUsed,
		LatencyMs:      &metrics.LatencyMs,
	})
	if err != nil {
		return nil, err
	}

	s.afterAppend(ctx, m)
	return m, nil
}

// SaveSystem appends a system message, used for operator notes and summary
// injections.
func (s *MessageService) SaveSystem(ctx context.Context, conversationID, content string) (*domain.Message, error) {
	m, err := repo.CreateMessage(ctx, s.DB, repo.CreateMessageParams{
		ConversationID: conversationID,
		Role:           domain.RoleSystem,
		Content:        content,
	})
	if err != nil {
		return nil, err
	}
	s.afterAppend(ctx, m)
	return m, nil
}

// RecentContext returns the trailing n messages of a conversation in
// chronological order, serving from the cached context document when it
// covers the request.
func (s *MessageService) RecentContext(ctx context.Context, conversationID string, n int) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "RecentContext",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if n <= 0 {
		n = s.window()
	}

	if s.Cache != nil {
		if doc, err := s.Cache.Load(ctx, conversationID); err == nil {
			msgs := doc.Messages
			if len(msgs) > n {
				msgs = msgs[len(msgs)-n:]
			}
			out := make([]domain.Message, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, domain.Message{
					ID:             m.ID,
					ConversationID: conversationID,
					Role:           m.Role,
					Content:        m.Content,
					CreatedAt:      m.CreatedAt.Time,
					TokensUsed:     m.TokensUsed,
					LatencyMs:      m.LatencyMs,
				})
			}
			return out, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("context cache read failed, falling back to store")
		}
	}

	return repo.ListRecentMessages(ctx, s.DB, conversationID, n)
}

// Get fetches a single message by ID.
func (s *MessageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

// Count returns the number of messages in a conversation.
func (s *MessageService) Count(ctx context.Context, conversationID string) (int64, error) {
	return repo.CountMessages(ctx, s.DB, conversationID)
}

// TokenStats aggregates token usage over a conversation's metered messages.
func (s *MessageService) TokenStats(ctx context.Context, conversationID string) (repo.TokenStats, error) {
	return repo.MessageTokenStats(ctx, s.DB, conversationID)
}

// CleanupOld trims a conversation to its most recent keepN messages and
// drops the cached context. A keepN of zero keeps the default window.
func (s *MessageService) CleanupOld(ctx context.Context, conversationID string, keepN int) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "CleanupOld",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if keepN <= 0 {
		keepN = s.window()
	}
	deleted, err := repo.DeleteMessagesOlderThan(ctx, s.DB, conversationID, keepN)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.invalidate(ctx, conversationID)
	}
	return deleted, nil
}

func (s *MessageService) window() int {
	if s.Window > 0 {
		return s.Window
	}
	return ContextWindow
}

// afterAppend advances the conversation clock and drops the stale context
// document. Failures here are logged, not surfaced; the message itself is
// already durable.
func (s *MessageService) afterAppend(ctx context.Context, m *domain.Message) {
	if err := repo.TouchConversation(ctx, s.DB, m.ConversationID, m.CreatedAt); err != nil {
		log.Warn().Err(err).Str("conversation_id", m.ConversationID).Msg("failed to advance conversation activity")
	}
	s.invalidate(ctx, m.ConversationID)
}

func (s *MessageService) invalidate(ctx context.Context, conversationID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("context cache invalidation failed")
	}
}
