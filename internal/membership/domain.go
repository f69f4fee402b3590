// internal/membership/domain.go
package membership

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarium/internal/errs"
)

// Tier is the membership level of a library member.
type Tier string

const (
	TierBasic   Tier = "Basic"
	TierPremium Tier = "Premium"
	TierStudent Tier = "Student"
	TierFaculty Tier = "Faculty"
)

// DefaultMaxBooks is the borrowing limit of a new Basic profile.
const DefaultMaxBooks = 5

var tierLimits = map[Tier]int{
	TierBasic:   DefaultMaxBooks,
	TierStudent: 5,
	TierPremium: 10,
	TierFaculty: 15,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

// MaxBooks returns the simultaneous borrowing limit of the tier.
func (t Tier) MaxBooks() int {
	if n, ok := tierLimits[t]; ok {
		return n
	}
	return DefaultMaxBooks
}

// ErrDuplicateProfile is returned when a user already has a profile.
var (
	ErrDuplicateProfile = errs.Define(errs.ErrConflict, "duplicate_profile", "membership profile already exists")
	// ErrTierBelowLoans is returned when a new tier allows fewer books than
	// the member currently holds.
	ErrTierBelowLoans = errs.Define(errs.ErrConflict, "tier_below_open_borrows", "member holds more books than the tier allows")
)

// Profile holds the lending limits and fine balance of one user.
type Profile struct {
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	Email           string          `json:"email" db:"email"`
	Name            string          `json:"name" db:"name"`
	Tier            Tier            `json:"tier" db:"tier"`
	MaxBooksAllowed int             `json:"max_books_allowed" db:"max_books_allowed"`
	TotalFines      decimal.Decimal `json:"total_fines" db:"total_fines"`
	Active          bool            `json:"active" db:"active"`
	MemberSince     time.Time       `json:"member_since" db:"member_since"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// AddFine accrues amount to the outstanding balance.
func (p *Profile) AddFine(amount decimal.Decimal) {
	if amount.IsPositive() {
		p.TotalFines = p.TotalFines.Add(amount)
	}
}

// SettleFine removes a paid amount from the balance. The balance never
// goes below zero.
func (p *Profile) SettleFine(amount decimal.Decimal) {
	p.TotalFines = p.TotalFines.Sub(amount)
	if p.TotalFines.IsNegative() {
		p.TotalFines = decimal.Zero
	}
}

// ChangeTier moves the profile to tier and applies the tier's limit.
func (p *Profile) ChangeTier(tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", errs.ErrInvalidInput, tier)
	}
	p.Tier = tier
	p.MaxBooksAllowed = tier.MaxBooks()
	return nil
}
