package repo

import (
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
)

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

func TestCreateMessage_StoresOptionalFields(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	m, err := CreateMessage(ctxTest(), db, CreateMessageParams{
		ConversationID: "c1",
		Role:           domain.RoleAssistant,
		Content:        "hola",
		TokensUsed:     intptr(120),
		LatencyMs:      intptr(840),
		Metadata:       map[string]any{"model": "claude-3-5-haiku-latest"},
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == "" || m.Role != domain.RoleAssistant || m.Content != "hola" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.TokensUsed == nil || *m.TokensUsed != 120 || m.LatencyMs == nil || *m.LatencyMs != 840 {
		t.Fatalf("metrics not stored: %+v", m)
	}
	if m.CreatedAt.IsZero() || time.Since(m.CreatedAt) > time.Minute {
		t.Fatalf("CreatedAt not set reasonably: %v", m.CreatedAt)
	}

	got, err := GetMessage(ctxTest(), db, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Metadata["model"] != "claude-3-5-haiku-latest" {
		t.Fatalf("metadata roundtrip: %+v", got.Metadata)
	}
}

func TestProviderSIDUniqueness(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	sid := "SMabcdefabcdefabcdefabcdefabcdefab"
	first, err := CreateMessage(ctxTest(), db, CreateMessageParams{
		ConversationID: "c1", Role: domain.RoleUser, Content: "hola", ProviderSID: strptr(sid),
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err = CreateMessage(ctxTest(), db, CreateMessageParams{
		ConversationID: "c1", Role: domain.RoleUser, Content: "otra", ProviderSID: strptr(sid),
	})
	if err == nil {
		t.Fatalf("expected unique violation on provider_sid")
	}
	if !IsDuplicate(err) {
		t.Fatalf("IsDuplicate should recognize %v", err)
	}

	// Probe resolves to the surviving row.
	got, err := FindMessageByProviderSID(ctxTest(), db, sid)
	if err != nil || got == nil || got.ID != first.ID {
		t.Fatalf("probe mismatch: %+v, %v", got, err)
	}

	// Multiple NULL SIDs coexist.
	for i := 0; i < 2; i++ {
		if _, err := CreateMessage(ctxTest(), db, CreateMessageParams{
			ConversationID: "c1", Role: domain.RoleAssistant, Content: fmt.Sprintf("r%d", i),
		}); err != nil {
			t.Fatalf("null-SID insert %d: %v", i, err)
		}
	}
}

func TestFindMessageByProviderSID_MissingReturnsNil(t *testing.T) {
	db := newTestDB(t)
	m, err := FindMessageByProviderSID(ctxTest(), db, "SMmissing")
	if err != nil || m != nil {
		t.Fatalf("expected (nil, nil), got %+v, %v", m, err)
	}
}

func TestListRecentMessages_Window(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 15; i++ {
		m := domain.Message{
			ID:             fmt.Sprintf("m%02d", i),
			ConversationID: "c1",
			Role:           domain.RoleUser,
			Content:        fmt.Sprintf("msg %d", i),
			CreatedAt:      t0.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed m%02d: %v", i, err)
		}
	}

	// 15 present, ask for 10 → the 10 most recent, oldest first.
	recent, err := ListRecentMessages(ctxTest(), db, "c1", 10)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(recent) != 10 || recent[0].ID != "m06" || recent[9].ID != "m15" {
		t.Fatalf("unexpected window: first=%s last=%s n=%d", recent[0].ID, recent[len(recent)-1].ID, len(recent))
	}

	// Fewer rows than requested → all of them, ascending.
	few, err := ListRecentMessages(ctxTest(), db, "c1", 100)
	if err != nil || len(few) != 15 || few[0].ID != "m01" {
		t.Fatalf("full window wrong: n=%d err=%v", len(few), err)
	}

	if none, err := ListRecentMessages(ctxTest(), db, "c1", 0); err != nil || len(none) != 0 {
		t.Fatalf("n=0 should return empty: %v, %v", none, err)
	}
}

func TestListMessages_OrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	// Same CreatedAt for the first two; ID breaks the tie.
	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	for _, m := range []domain.Message{
		{ID: "b", ConversationID: "c1", Role: domain.RoleUser, Content: "y", CreatedAt: t0},
		{ID: "a", ConversationID: "c1", Role: domain.RoleUser, Content: "x", CreatedAt: t0},
		{ID: "z", ConversationID: "c1", Role: domain.RoleAssistant, Content: "r", CreatedAt: t0.Add(time.Second)},
	} {
		mm := m
		if err := db.Create(&mm).Error; err != nil {
			t.Fatalf("seed %s: %v", m.ID, err)
		}
	}

	all, err := ListMessages(ctxTest(), db, "c1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "z" {
		t.Fatalf("unexpected order: %+v", all)
	}

	top2, err := ListMessages(ctxTest(), db, "c1", 2)
	if err != nil || len(top2) != 2 || top2[0].ID != "a" {
		t.Fatalf("limit wrong: %+v, %v", top2, err)
	}
}

func TestMessageTokenStats(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	for i, tokens := range []*int{intptr(100), intptr(200), nil} {
		if _, err := CreateMessage(ctxTest(), db, CreateMessageParams{
			ConversationID: "c1", Role: domain.RoleAssistant, Content: fmt.Sprintf("r%d", i), TokensUsed: tokens,
		}); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	stats, err := MessageTokenStats(ctxTest(), db, "c1")
	if err != nil {
		t.Fatalf("MessageTokenStats: %v", err)
	}
	if stats.Total != 300 || stats.Count != 2 || stats.Avg != 150 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	empty, err := MessageTokenStats(ctxTest(), db, "missing")
	if err != nil || empty.Total != 0 || empty.Count != 0 {
		t.Fatalf("empty stats: %+v, %v", empty, err)
	}
}

func TestUpdateMessageMetadata(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	m, err := CreateMessage(ctxTest(), db, CreateMessageParams{ConversationID: "c1", Role: domain.RoleUser, Content: "hola"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := UpdateMessageMetadata(ctxTest(), db, m.ID, map[string]any{"flag": true})
	if err != nil {
		t.Fatalf("UpdateMessageMetadata: %v", err)
	}
	if got.Metadata["flag"] != true {
		t.Fatalf("metadata not updated: %+v", got.Metadata)
	}
	if got.Content != "hola" {
		t.Fatalf("content must never change: %+v", got)
	}
}

func TestDeleteMessagesOlderThan(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")
	seedConversation(t, db, "c1", "u1", domain.StatusActive, time.Now().UTC())

	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 15; i++ {
		m := domain.Message{
			ID:             fmt.Sprintf("m%02d", i),
			ConversationID: "c1",
			Role:           domain.RoleUser,
			Content:        fmt.Sprintf("msg %d", i),
			CreatedAt:      t0.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed m%02d: %v", i, err)
		}
	}

	deleted, err := DeleteMessagesOlderThan(ctxTest(), db, "c1", 10)
	if err != nil {
		t.Fatalf("DeleteMessagesOlderThan: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("deleted = %d, want 5", deleted)
	}

	left, err := ListMessages(ctxTest(), db, "c1", 0)
	if err != nil || len(left) != 10 {
		t.Fatalf("survivors = %d, %v", len(left), err)
	}
	if left[0].ID != "m06" {
		t.Fatalf("wrong rows trimmed: first survivor %s", left[0].ID)
	}

	// Trimming again is a no-op.
	again, err := DeleteMessagesOlderThan(ctxTest(), db, "c1", 10)
	if err != nil || again != 0 {
		t.Fatalf("second trim = %d, %v", again, err)
	}
}

func TestCountMessages_ErrorOnMissingTable(t *testing.T) {
	db := newTestDB(t)
	db.Exec("DROP TABLE messages")
	if _, err := CountMessages(ctxTest(), db, "c1"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}
