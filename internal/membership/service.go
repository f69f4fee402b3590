// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, req Registration) (*Profile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpdateTier(ctx context.Context, userID uuid.UUID, tier Tier) (*Profile, error)
	SetActive(ctx context.Context, userID uuid.UUID, active bool) (*Profile, error)
}

// Store is the persistence the membership service needs.
type Store interface {
	InsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	// ModifyProfile loads the profile under a row lock, applies fn and
	// saves the result. Nothing is written when fn fails.
	ModifyProfile(ctx context.Context, userID uuid.UUID, fn func(*Profile) error) (*Profile, error)
	// ModifyProfileWithLoans is ModifyProfile with the user's count of
	// Borrowed and Overdue records read under the same lock.
	ModifyProfileWithLoans(ctx context.Context, userID uuid.UUID, fn func(p *Profile, openBorrows int) error) (*Profile, error)
}

// Registration is the input for Register. The user id comes from the
// identity provider in front of the service.
type Registration struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Email  string    `json:"email" validate:"required,email,max=254"`
	Name   string    `json:"name" validate:"required,max=150"`
	Tier   Tier      `json:"tier"`
}
