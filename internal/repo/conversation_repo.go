// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// Ownership semantics:
//   - Read-path lookups that carry a caller user id (GetConversation with
//     AsUser) return ErrNotFound on owner mismatch, deliberately
//     indistinguishable from a missing row.
//   - Write-path operations (SetConversationSummary, CloseConversation,
//     ArchiveConversation) distinguish ErrNotFound from ErrAccessDenied so
//     callers can log tampering attempts, and leave the row untouched in
//     both cases.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
)

// GetConversationOpts tunes GetConversation lookups.
type GetConversationOpts struct {
	// IncludeMessages preloads the conversation's messages in ascending
	// creation order.
	IncludeMessages bool
	// AsUser, when non-empty, restricts the lookup to conversations owned by
	// that user. A mismatch reads as not-found.
	AsUser string
}

// FindActiveConversation returns the caller's current conversation: the
// ACTIVE one with the greatest last-activity timestamp, or (nil, nil) when
// the user has none.
func FindActiveConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Order("last_message_at DESC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by id. See GetConversationOpts for
// ownership and preload behavior. Returns ErrNotFound when the row is
// missing or owned by someone else.
func GetConversation(ctx context.Context, db *gorm.DB, id string, opts GetConversationOpts) (*domain.Conversation, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if opts.AsUser != "" {
		q = q.Where("user_id = ?", opts.AsUser)
	}
	if opts.IncludeMessages {
		q = q.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC, id ASC")
		})
	}
	var c domain.Conversation
	if err := q.First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a fresh ACTIVE conversation for userID with all
// timestamps set to now.
func CreateConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        domain.StatusActive,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// TouchConversation bumps the conversation's last-activity timestamp to at.
// Returns ErrNotFound when the conversation does not exist.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_message_at": at.UTC(), "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationSummary stores a context summary on the conversation after
// verifying ownership.
func SetConversationSummary(ctx context.Context, db *gorm.DB, id, summary, asUser string) (*domain.Conversation, error) {
	c, err := requireOwned(ctx, db, id, asUser)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := db.WithContext(ctx).Model(c).
		Updates(map[string]any{"context_summary": summary, "updated_at": now}).Error; err != nil {
		return nil, err
	}
	c.ContextSummary = &summary
	c.UpdatedAt = now
	return c, nil
}

// CloseConversation transitions an ACTIVE conversation to CLOSED after
// verifying ownership. Terminal conversations read as not-found to the
// interactive path.
func CloseConversation(ctx context.Context, db *gorm.DB, id, asUser string) error {
	return transition(ctx, db, id, asUser, domain.StatusClosed)
}

// ArchiveConversation transitions an ACTIVE conversation to ARCHIVED after
// verifying ownership.
func ArchiveConversation(ctx context.Context, db *gorm.DB, id, asUser string) error {
	return transition(ctx, db, id, asUser, domain.StatusArchived)
}

// ListConversations returns the user's conversations ordered by last
// activity descending, optionally filtered to one status.
func ListConversations(ctx context.Context, db *gorm.DB, userID, status string) ([]domain.Conversation, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Conversation
	err := q.Order("last_message_at DESC").Find(&out).Error
	return out, err
}

// CountConversationsByStatus returns the number of conversations in status.
func CountConversationsByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Where("status = ?", status).Count(&total).Error
	return total, err
}

// CountConversations returns the total number of conversation rows.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Count(&total).Error
	return total, err
}

// requireOwned fetches the conversation and enforces the ownership check
// shared by all write-path operations.
func requireOwned(ctx context.Context, db *gorm.DB, id, asUser string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	if c.UserID != asUser {
		return nil, ErrAccessDenied
	}
	return &c, nil
}

// transition moves an owned ACTIVE conversation into a terminal status. The
// status guard in the WHERE clause keeps concurrent transitions from racing
// past each other.
func transition(ctx context.Context, db *gorm.DB, id, asUser, to string) error {
	if _, err := requireOwned(ctx, db, id, asUser); err != nil {
		return err
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND status = ?", id, domain.StatusActive).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
