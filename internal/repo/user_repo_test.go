package repo

import (
	"testing"
)

func TestUpsertUser_CreatesWithDefaults(t *testing.T) {
	db := newTestDB(t)

	u, err := UpsertUser(ctxTest(), db, "+14155550001", UpsertUserParams{})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u.ID == "" || u.PhoneNumber != "+14155550001" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Language != "es" {
		t.Fatalf("default language = %q, want es", u.Language)
	}
	if u.ProfileName != nil {
		t.Fatalf("profile name should be nil on bare create")
	}

	total, err := CountUsers(ctxTest(), db)
	if err != nil || total != 1 {
		t.Fatalf("CountUsers = %d, %v", total, err)
	}
}

func TestUpsertUser_UpdatesOnlySuppliedFields(t *testing.T) {
	db := newTestDB(t)

	first, err := UpsertUser(ctxTest(), db, "+14155550001", UpsertUserParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Ana"
	second, err := UpsertUser(ctxTest(), db, "+14155550001", UpsertUserParams{ProfileName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a second row: %q vs %q", second.ID, first.ID)
	}
	if second.ProfileName == nil || *second.ProfileName != "Ana" {
		t.Fatalf("profile name not updated: %+v", second)
	}
	if second.Language != "es" {
		t.Fatalf("language changed without being supplied: %q", second.Language)
	}

	lang := "en"
	third, err := UpsertUser(ctxTest(), db, "+14155550001", UpsertUserParams{Language: &lang})
	if err != nil {
		t.Fatalf("language update: %v", err)
	}
	if third.Language != "en" {
		t.Fatalf("language not updated: %q", third.Language)
	}
	if third.ProfileName == nil || *third.ProfileName != "Ana" {
		t.Fatalf("profile name lost on partial update: %+v", third)
	}
}

func TestFindUserByPhone_MissingReturnsNil(t *testing.T) {
	db := newTestDB(t)

	u, err := FindUserByPhone(ctxTest(), db, "+19999999999")
	if err != nil {
		t.Fatalf("FindUserByPhone: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil for missing user, got %+v", u)
	}
}

func TestFindUserByID_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	seeded := seedUser(t, db, "u1", "+14155550001")

	got, err := FindUserByID(ctxTest(), db, seeded.ID)
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if got == nil || got.PhoneNumber != "+14155550001" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	none, err := FindUserByID(ctxTest(), db, "missing")
	if err != nil || none != nil {
		t.Fatalf("missing id should be (nil, nil): %+v, %v", none, err)
	}
}

func TestUpsertUser_PhoneUniqueness(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "+14155550001")

	// A direct duplicate insert violates the constraint...
	err := db.Exec(
		"INSERT INTO users (id, phone_number, language, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		"u2", "+14155550001", "es", "2025-01-01", "2025-01-01",
	).Error
	if err == nil {
		t.Fatalf("expected unique violation on phone_number")
	}
	if !IsDuplicate(err) {
		t.Fatalf("IsDuplicate should recognize %v", err)
	}

	// ...while the upsert resolves to the existing row.
	u, err := UpsertUser(ctxTest(), db, "+14155550001", UpsertUserParams{})
	if err != nil || u.ID != "u1" {
		t.Fatalf("upsert should return existing row: %+v, %v", u, err)
	}
}
