// Package domain defines the persistence models for users, conversations,
// and messages. These types are mapped with GORM and form the core data
// layer of the WhatsApp gateway.
package domain

import (
	"time"
)

// Conversation status values. A conversation is created ACTIVE and may be
// transitioned to CLOSED or ARCHIVED exactly once; neither terminal state
// transitions back on the inbound path.
const (
	StatusActive   = "ACTIVE"
	StatusClosed   = "CLOSED"
	StatusArchived = "ARCHIVED"
)

// Message role values.
const (
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleSystem    = "SYSTEM"
)

// User identifies a WhatsApp endpoint. A row is created on the first inbound
// message from a phone number and is never deleted by the gateway.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PhoneNumber: canonical form "+<digits>"; unique.
//   - ProfileName: optional display name forwarded by the provider.
//   - Language: BCP-47 tag used for localized replies; defaults to "es".
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	PhoneNumber string    `json:"phone_number" gorm:"type:varchar(32);not null;uniqueIndex:ux_users_phone"`
	ProfileName *string   `json:"profile_name,omitempty" gorm:"type:varchar(255)"`
	Language    string    `json:"language"     gorm:"type:varchar(8);not null;default:'es'"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation is a bounded session grouping messages for exactly one user.
// The "current" conversation is the ACTIVE one with the greatest
// LastMessageAt. Every mutating operation that names a conversation together
// with a caller user id must reject on mismatch.
type Conversation struct {
	ID             string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id" gorm:"type:char(36);not null;index:idx_conversations_user;index:idx_conversations_status_user,priority:2"`
	Status         string    `json:"status"  gorm:"type:varchar(16);not null;default:'ACTIVE';check:status IN ('ACTIVE','CLOSED','ARCHIVED');index:idx_conversations_status_user,priority:1"`
	ContextSummary *string   `json:"context_summary,omitempty" gorm:"type:text"`
	LastMessageAt  time.Time `json:"last_message_at" gorm:"index:idx_conversations_last_message"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_conversations_created"`
	UpdatedAt      time.Time `json:"updated_at"`

	// User is the owning endpoint. Conversations are cascade-deleted if the
	// user row is removed at the store layer.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Messages is populated only when explicitly preloaded.
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single turn within a conversation. Messages are append-only;
// only the free-form Metadata field is ever updated after insert.
//
// ProviderSID is the provider's message identifier (Twilio MessageSid). It is
// globally unique when present and serves as the at-most-once key for
// inbound inserts.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_messages_conversation;index:idx_messages_role_conversation,priority:2"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('USER','ASSISTANT','SYSTEM');index:idx_messages_role_conversation,priority:1"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	ProviderSID    *string        `json:"provider_sid,omitempty" gorm:"column:provider_sid;type:varchar(64);uniqueIndex:ux_messages_provider_sid"`
	Metadata       map[string]any `json:"metadata,omitempty" gorm:"serializer:json"`
	TokensUsed     *int           `json:"tokens_used,omitempty"`
	LatencyMs      *int           `json:"latency_ms,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index:idx_messages_created"`

	// Conversation is the parent session. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Analytics is declared for schema parity with the operational tooling; the
// gateway itself never writes rows here.
type Analytics struct {
	ID             string         `json:"id"         gorm:"type:char(36);primaryKey"`
	EventType      string         `json:"event_type" gorm:"type:varchar(64);not null;index"`
	UserID         *string        `json:"user_id,omitempty"         gorm:"type:char(36);index"`
	ConversationID *string        `json:"conversation_id,omitempty" gorm:"type:char(36);index"`
	Payload        map[string]any `json:"payload,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TableName returns the database table name for Analytics.
func (Analytics) TableName() string { return "analytics" }
