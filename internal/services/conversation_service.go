// Package services – ConversationService
//
// This file implements the ConversationService, which manages the lifecycle
// of WhatsApp conversations: resolving the caller's active conversation
// (creating one when none exists), serving the cached context document with
// a database fallback, and performing the CLOSED/ARCHIVED transitions with
// ownership enforcement.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// conversation and user identifiers, never message content.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/rs/zerolog/log"
	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
	"github.com/tbourn/go-whatsapp-gateway/internal/repo"
)

// ContextWindow is the number of trailing messages a context document keeps.
const ContextWindow = 10

// ConversationService coordinates conversation state across the database and
// the context cache.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache serves conversation context documents. Optional; when nil every
	// read falls through to the database.
	Cache *cache.ContextCache
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, cc *cache.ContextCache) *ConversationService {
	return &ConversationService{DB: db, Cache: cc}
}

// GetOrCreate resolves the user's current ACTIVE conversation, creating a
// fresh one when none exists. Closed and archived conversations are never
// reopened.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	conv, err := repo.FindActiveConversation(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}
	return repo.CreateConversation(ctx, s.DB, userID)
}

// GetWithContext returns the conversation context document, cache first. A
// cache miss (or an unusable cached entry) falls back to the database and
// repopulates the cache with the last ContextWindow messages. Cache failures
// are logged and treated as misses; the database remains authoritative.
func (s *ConversationService) GetWithContext(ctx context.Context, conversationID string) (*cache.ConversationContext, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "GetWithContext",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if s.Cache != nil {
		doc, err := s.Cache.Load(ctx, conversationID)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("context cache read failed, falling back to store")
		}
	}

	conv, err := repo.GetConversation(ctx, s.DB, conversationID, repo.GetConversationOpts{IncludeMessages: true})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	doc := buildContext(conv, ContextWindow)
	if s.Cache != nil {
		if err := s.Cache.Save(ctx, doc); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("context cache write failed")
		}
	}
	return doc, nil
}

// Close transitions an ACTIVE conversation to CLOSED on behalf of userID and
// drops its cached context.
func (s *ConversationService) Close(ctx context.Context, conversationID, userID string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Close",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := repo.CloseConversation(ctx, s.DB, conversationID, userID); err != nil {
		return mapRepoErr(err)
	}
	s.invalidate(ctx, conversationID)
	return nil
}

// Archive transitions an ACTIVE conversation to ARCHIVED on behalf of userID
// and drops its cached context.
func (s *ConversationService) Archive(ctx context.Context, conversationID, userID string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Archive",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := repo.ArchiveConversation(ctx, s.DB, conversationID, userID); err != nil {
		return mapRepoErr(err)
	}
	s.invalidate(ctx, conversationID)
	return nil
}

// UpdateSummary replaces the rolling context summary on behalf of userID and
// drops the cached document so the next read reflects it.
func (s *ConversationService) UpdateSummary(ctx context.Context, conversationID, summary, userID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "UpdateSummary",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	conv, err := repo.SetConversationSummary(ctx, s.DB, conversationID, summary, userID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.invalidate(ctx, conversationID)
	return conv, nil
}

// List returns a user's conversations, newest activity first, optionally
// filtered by status.
func (s *ConversationService) List(ctx context.Context, userID, status string) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, s.DB, userID, status)
}

// invalidate drops the cached context document. Best effort; a failing cache
// must not fail the state change that preceded it.
func (s *ConversationService) invalidate(ctx context.Context, conversationID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("context cache invalidation failed")
	}
}

// mapRepoErr translates repository sentinels into service sentinels.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrAccessDenied):
		return ErrAccessDenied
	case errors.Is(err, repo.ErrNotFound):
		return ErrConversationNotFound
	default:
		return err
	}
}

// buildContext projects a conversation and its trailing window of messages
// into the cacheable document shape.
func buildContext(conv *domain.Conversation, window int) *cache.ConversationContext {
	msgs := conv.Messages
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	doc := &cache.ConversationContext{
		ID:             conv.ID,
		UserID:         conv.UserID,
		Status:         conv.Status,
		ContextSummary: conv.ContextSummary,
		LastMessageAt:  cache.Timestamp{Time: conv.LastMessageAt},
		CreatedAt:      cache.Timestamp{Time: conv.CreatedAt},
		UpdatedAt:      cache.Timestamp{Time: conv.UpdatedAt},
		Messages:       make([]cache.ContextMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		doc.Messages = append(doc.Messages, cache.ContextMessage{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.Content,
			CreatedAt:  cache.Timestamp{Time: m.CreatedAt},
			TokensUsed: m.TokensUsed,
			LatencyMs:  m.LatencyMs,
		})
	}
	return doc
}
