// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - Lookups return (nil, nil) when the user does not exist.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated; the gateway never swallows store
//     errors at this layer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
)

// defaultLanguage is applied to users created by upsert.
const defaultLanguage = "es"

// UpsertUserParams carries the optional profile fields of an upsert. Nil
// fields are left untouched on update.
type UpsertUserParams struct {
	ProfileName *string
	Language    *string
}

// FindUserByPhone returns the user owning the canonical phone number, or
// (nil, nil) when no such user exists.
func FindUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("phone_number = ?", phone).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByID returns the user with the given id, or (nil, nil) when absent.
func FindUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser atomically creates or updates the user identified by phone.
// On create, the language defaults to "es". On update, only supplied fields
// change. A concurrent create racing on the phone uniqueness constraint is
// resolved by re-reading the winning row.
func UpsertUser(ctx context.Context, db *gorm.DB, phone string, p UpsertUserParams) (*domain.User, error) {
	existing, err := FindUserByPhone(ctx, db, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updates := map[string]any{}
		if p.ProfileName != nil {
			updates["profile_name"] = *p.ProfileName
		}
		if p.Language != nil {
			updates["language"] = *p.Language
		}
		if len(updates) == 0 {
			return existing, nil
		}
		updates["updated_at"] = time.Now().UTC()
		if err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
		return FindUserByID(ctx, db, existing.ID)
	}

	now := time.Now().UTC()
	u := &domain.User{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		ProfileName: p.ProfileName,
		Language:    defaultLanguage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Language != nil {
		u.Language = *p.Language
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if IsDuplicate(err) {
			// Lost the create race; the other writer's row wins.
			return FindUserByPhone(ctx, db, phone)
		}
		return nil, err
	}
	return u, nil
}

// CountUsers returns the total number of user rows.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}
