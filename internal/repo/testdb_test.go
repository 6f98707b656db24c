package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
)

// newTestDB opens a temp-file SQLite database migrated with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedUser inserts a user row directly.
func seedUser(t *testing.T, db *gorm.DB, id, phone string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, PhoneNumber: phone, Language: "es", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// seedConversation inserts a conversation row directly.
func seedConversation(t *testing.T, db *gorm.DB, id, userID, status string, lastMessageAt time.Time) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{
		ID: id, UserID: userID, Status: status,
		LastMessageAt: lastMessageAt, CreatedAt: lastMessageAt, UpdatedAt: lastMessageAt,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return c
}

func ctxTest() context.Context { return context.Background() }
