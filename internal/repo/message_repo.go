// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: append-only inserts, the provider-SID idempotency probe, recent-N
// retrieval, token aggregates, and retention trimming.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
)

// CreateMessageParams carries the fields of an append. ProviderSID,
// Metadata, TokensUsed, and LatencyMs are optional.
type CreateMessageParams struct {
	ConversationID string
	Role           string
	Content        string
	ProviderSID    *string
	Metadata       map[string]any
	TokensUsed     *int
	LatencyMs      *int
}

// TokenStats aggregates token usage over messages with a non-null token
// count.
type TokenStats struct {
	Total int64
	Count int64
	Avg   float64
}

// CreateMessage inserts a new message row with a UUID primary key and UTC
// creation timestamp. Unique violations on ProviderSID propagate so callers
// can resolve the insert race via IsDuplicate.
func CreateMessage(ctx context.Context, db *gorm.DB, p CreateMessageParams) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		Role:           p.Role,
		Content:        p.Content,
		ProviderSID:    p.ProviderSID,
		Metadata:       p.Metadata,
		TokensUsed:     p.TokensUsed,
		LatencyMs:      p.LatencyMs,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// FindMessageByProviderSID is the idempotency probe: it returns the message
// bearing sid, or (nil, nil) when none exists.
func FindMessageByProviderSID(ctx context.Context, db *gorm.DB, sid string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).Where("provider_sid = ?", sid).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a conversation's messages ordered deterministically
// (CreatedAt ASC, ID ASC). A limit <= 0 returns all rows.
func ListMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Message
	err := q.Find(&out).Error
	return out, err
}

// ListRecentMessages returns the n most recent messages of a conversation in
// ascending order (oldest of the window first).
func ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, n int) ([]domain.Message, error) {
	if n <= 0 {
		return []domain.Message{}, nil
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// The query walks backwards from the newest row; flip to ascending.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdateMessageMetadata replaces the free-form metadata of a message. This
// is the only mutation permitted on a persisted message.
func UpdateMessageMetadata(ctx context.Context, db *gorm.DB, id string, metadata map[string]any) (*domain.Message, error) {
	m, err := GetMessage(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(m).Select("metadata").Updates(&domain.Message{Metadata: metadata}).Error; err != nil {
		return nil, err
	}
	m.Metadata = metadata
	return m, nil
}

// CountMessages returns the number of messages in a conversation. Uses a raw
// COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// MessageTokenStats aggregates token usage for a conversation over rows with
// a non-null token count.
func MessageTokenStats(ctx context.Context, db *gorm.DB, conversationID string) (TokenStats, error) {
	var row struct {
		Total int64
		Count int64
		Avg   float64
	}
	err := db.WithContext(ctx).
		Raw(`SELECT COALESCE(SUM(tokens_used), 0) AS total,
		            COUNT(tokens_used)            AS count,
		            COALESCE(AVG(tokens_used), 0) AS avg
		     FROM messages
		     WHERE conversation_id = ? AND tokens_used IS NOT NULL`, conversationID).
		Scan(&row).Error
	if err != nil {
		return TokenStats{}, err
	}
	return TokenStats{Total: row.Total, Count: row.Count, Avg: row.Avg}, nil
}

// DeleteMessagesOlderThan removes all but the keepN most recent messages of
// a conversation and returns the number of deleted rows.
func DeleteMessagesOlderThan(ctx context.Context, db *gorm.DB, conversationID string, keepN int) (int64, error) {
	if keepN < 0 {
		keepN = 0
	}
	var keepIDs []string
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(keepN).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return 0, err
	}

	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN ?", keepIDs)
	}
	res := q.Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}
