package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ContextTTL is the lifetime of a cached conversation context document.
const ContextTTL = time.Hour

// ContextKey builds the cache key of a conversation's context document.
func ContextKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:context", conversationID)
}

// contextValidate checks documents read back from the cache. Entries written
// by older deployments may not match the current schema; a failed validation
// evicts the entry instead of surfacing garbage.
var contextValidate = validator.New()

// Timestamp marshals as an ISO-8601 (RFC 3339) string and unmarshals from
// either that form or a numeric epoch (seconds, or milliseconds when the
// magnitude makes seconds implausible).
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	// Epoch milliseconds start being plausible around 1e12 (Sep 2001).
	if n >= 1e12 {
		t.Time = time.UnixMilli(int64(n)).UTC()
	} else {
		t.Time = time.Unix(int64(n), 0).UTC()
	}
	return nil
}

// ContextMessage is one message inside a cached context document.
type ContextMessage struct {
	ID         string    `json:"id" validate:"required"`
	Role       string    `json:"role" validate:"required,oneof=USER ASSISTANT SYSTEM"`
	Content    string    `json:"content"`
	CreatedAt  Timestamp `json:"createdAt"`
	TokensUsed *int      `json:"tokensUsed,omitempty"`
	LatencyMs  *int      `json:"latencyMs,omitempty"`
}

// ConversationContext is the document stored at ContextKey. Messages are
// ordered oldest first.
type ConversationContext struct {
	ID             string           `json:"id" validate:"required"`
	UserID         string           `json:"userId" validate:"required"`
	Status         string           `json:"status" validate:"required,oneof=ACTIVE CLOSED ARCHIVED"`
	ContextSummary *string          `json:"contextSummary,omitempty"`
	LastMessageAt  Timestamp        `json:"lastMessageAt"`
	CreatedAt      Timestamp        `json:"createdAt"`
	UpdatedAt      Timestamp        `json:"updatedAt"`
	Messages       []ContextMessage `json:"messages" validate:"dive"`
}

// ContextCache reads and writes conversation context documents through a
// Store.
type ContextCache struct {
	Store Store
	TTL   time.Duration
}

// NewContextCache wraps store with the default TTL.
func NewContextCache(store Store) *ContextCache {
	return &ContextCache{Store: store, TTL: ContextTTL}
}

// Load returns the cached document for a conversation. A missing key, a
// document that no longer parses, or one that fails schema validation all
// surface as ErrMiss; the latter two evict the stale entry first so the
// caller falls back to the store.
func (c *ContextCache) Load(ctx context.Context, conversationID string) (*ConversationContext, error) {
	key := ContextKey(conversationID)
	raw, err := c.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var doc ConversationContext
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		_ = c.Store.Del(ctx, key)
		return nil, ErrMiss
	}
	if err := contextValidate.Struct(&doc); err != nil {
		_ = c.Store.Del(ctx, key)
		return nil, ErrMiss
	}
	return &doc, nil
}

// Save stores the document under its conversation's key with the configured
// TTL.
func (c *ContextCache) Save(ctx context.Context, doc *ConversationContext) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = ContextTTL
	}
	return c.Store.SetEX(ctx, ContextKey(doc.ID), string(body), ttl)
}

// Invalidate drops the cached document for a conversation.
func (c *ContextCache) Invalidate(ctx context.Context, conversationID string) error {
	return c.Store.Del(ctx, ContextKey(conversationID))
}
