// Package services – UserService
//
// Thin wrapper around the user repository: the webhook path resolves the
// sender by phone number, creating the row on first contact and refreshing
// the WhatsApp profile name when Twilio supplies one.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-gateway/internal/domain"
	"github.com/tbourn/go-whatsapp-gateway/internal/repo"
)

// UserService resolves and maintains user records.
type UserService struct {
	DB *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// GetOrCreate resolves the user owning phone, creating the record when
// absent. A non-empty profileName updates the stored name.
func (s *UserService) GetOrCreate(ctx context.Context, phone, profileName string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "GetOrCreate")
	defer span.End()

	params := repo.UpsertUserParams{}
	if profileName != "" {
		params.ProfileName = &profileName
	}
	return repo.UpsertUser(ctx, s.DB, phone, params)
}

// Get fetches a user by ID, or nil when absent.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return repo.FindUserByID(ctx, s.DB, id)
}
