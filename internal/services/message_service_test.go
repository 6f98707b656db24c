package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-whatsapp-gateway/internal/cache"
	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
)

func sidptr(s string) *string { return &s }

func TestSaveUser_AppendsAndTouches(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedConversation(t, db, "c1", "u1", domain.StatusActive, old)

	svc := NewMessageService(db, newTestCache())
	m, created, err := svc.SaveUser(ctxTest(), "c1", "hola", sidptr("SMaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), nil)
	if err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if !created || m.Role != domain.RoleUser || m.Content != "hola" {
		t.Fatalf("unexpected result: created=%v %+v", created, m)
	}

	var conv domain.Conversation
	if err := db.First(&conv, "id = ?", "c1").Error; err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	if !conv.LastMessageAt.After(old) {
		t.Fatalf("conversation clock not advanced: %v", conv.LastMessageAt)
	}
}

func TestSaveUser_DuplicateSIDShortCircuits(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	svc := NewMessageService(db, newTestCache())
	sid := "SMbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	first, created, err := svc.SaveUser(ctxTest(), "c1", "hola", sidptr(sid), nil)
	if err != nil || !created {
		t.Fatalf("first save: created=%v err=%v", created, err)
	}

	second, created, err := svc.SaveUser(ctxTest(), "c1", "hola otra vez", sidptr(sid), nil)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if created {
		t.Fatalf("redelivery must not create a row")
	}
	if second.ID != first.ID || second.Content != "hola" {
		t.Fatalf("redelivery returned wrong row: %+v", second)
	}

	n, err := svc.Count(ctxTest(), "c1")
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}
}

func TestSaveUser_EmptyContentRejected(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	svc := NewMessageService(db, newTestCache())
	if _, _, err := svc.SaveUser(ctxTest(), "c1", "   ", nil, nil); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	// Media-only deliveries carry the reference in metadata.
	if _, _, err := svc.SaveUser(ctxTest(), "c1", "", nil, map[string]any{"media_url_0": "https://example.test/a.jpg"}); err != nil {
		t.Fatalf("media-only message rejected: %v", err)
	}
}

func TestSaveAssistant_StoresMetrics(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	svc := NewMessageService(db, newTestCache())
	m, err := svc.SaveAssistant(ctxTest(), "c1", "¡Hola!", AssistantMetrics{
		TokensUsed: 150,
		LatencyMs:  820,
		Model:      "claude-3-5-haiku-latest",
		StopReason: "end_turn",
		CostUSD:    0.0002,
	})
	if err != nil {
		t.Fatalf("SaveAssistant: %v", err)
	}
	if m.TokensUsed == nil || *m.TokensUsed != 150 || m.LatencyMs == nil || *m.LatencyMs != 820 {
		t.Fatalf("metrics not stored: %+v", m)
	}
	if m.Metadata["model"] != "claude-3-5-haiku-latest" || m.Metadata["stop_reason"] != "end_turn" {
		t.Fatalf("metadata missing: %+v", m.Metadata)
	}

	stats, err := svc.TokenStats(ctxTest(), "c1")
	if err != nil || stats.Total != 150 || stats.Count != 1 {
		t.Fatalf("TokenStats = %+v, %v", stats, err)
	}
}

func TestSaveUser_InvalidatesCachedContext(t *testing.T) {
	db := newTestDB(t)
	cc := newTestCache()
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	stale := &cache.ConversationContext{ID: "c1", UserID: "u1", Status: domain.StatusActive}
	if err := cc.Save(ctxTest(), stale); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	svc := NewMessageService(db, cc)
	if _, _, err := svc.SaveUser(ctxTest(), "c1", "hola", nil, nil); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if _, err := cc.Load(ctxTest(), "c1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("stale context survived the append: %v", err)
	}
}

func TestRecentContext_CacheFirstThenFallback(t *testing.T) {
	db := newTestDB(t)
	cc := newTestCache()
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	t0 := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 4; i++ {
		seedMessage(t, db, fmt.Sprintf("db-m%d", i), "c1", domain.RoleUser, fmt.Sprintf("db %d", i), t0.Add(time.Duration(i)*time.Second))
	}

	svc := NewMessageService(db, cc)

	// Miss: served from the store, ascending.
	fromDB, err := svc.RecentContext(ctxTest(), "c1", 10)
	if err != nil {
		t.Fatalf("RecentContext: %v", err)
	}
	if len(fromDB) != 4 || fromDB[0].ID != "db-m1" {
		t.Fatalf("store fallback wrong: %+v", fromDB)
	}

	// Hit: the cached document wins and is trimmed to the request.
	doc := &cache.ConversationContext{
		ID: "c1", UserID: "u1", Status: domain.StatusActive,
		Messages: []cache.ContextMessage{
			{ID: "cm1", Role: domain.RoleUser, Content: "uno"},
			{ID: "cm2", Role: domain.RoleAssistant, Content: "dos"},
			{ID: "cm3", Role: domain.RoleUser, Content: "tres"},
		},
	}
	if err := cc.Save(ctxTest(), doc); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	fromCache, err := svc.RecentContext(ctxTest(), "c1", 2)
	if err != nil {
		t.Fatalf("RecentContext cached: %v", err)
	}
	if len(fromCache) != 2 || fromCache[0].ID != "cm2" || fromCache[1].ID != "cm3" {
		t.Fatalf("cached window wrong: %+v", fromCache)
	}
}

func TestCleanupOld_TrimsAndInvalidates(t *testing.T) {
	db := newTestDB(t)
	cc := newTestCache()
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	t0 := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		seedMessage(t, db, fmt.Sprintf("m%02d", i), "c1", domain.RoleUser, fmt.Sprintf("msg %d", i), t0.Add(time.Duration(i)*time.Second))
	}
	if err := cc.Save(ctxTest(), &cache.ConversationContext{ID: "c1", UserID: "u1", Status: domain.StatusActive}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	svc := NewMessageService(db, cc)
	deleted, err := svc.CleanupOld(ctxTest(), "c1", 0)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}
	if _, err := cc.Load(ctxTest(), "c1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("cache should have been invalidated")
	}

	n, _ := svc.Count(ctxTest(), "c1")
	if n != 10 {
		t.Fatalf("survivors = %d, want 10", n)
	}
}

func TestUserService_GetOrCreate(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	u, err := svc.GetOrCreate(ctxTest(), "+14155550001", "Ana")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if u.ProfileName == nil || *u.ProfileName != "Ana" || u.Language != "es" {
		t.Fatalf("unexpected user: %+v", u)
	}

	again, err := svc.GetOrCreate(ctxTest(), "+14155550001", "")
	if err != nil || again.ID != u.ID {
		t.Fatalf("second resolve: %+v, %v", again, err)
	}
	if again.ProfileName == nil || *again.ProfileName != "Ana" {
		t.Fatalf("empty profile name must not erase the stored one: %+v", again)
	}
}
