// internal/review/domain.go
package review

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarium/internal/errs"
)

var (
	ErrDuplicateReview   = errs.Define(errs.ErrConflict, "duplicate_review", "you have already reviewed this book")
	ErrDuplicateWishlist = errs.Define(errs.ErrConflict, "duplicate_wishlist_item", "book is already on your wishlist")
)

// Review is one member's rating of a book.
type Review struct {
	ID               uuid.UUID `json:"id" db:"id"`
	UserID           uuid.UUID `json:"user_id" db:"user_id"`
	BookID           uuid.UUID `json:"book_id" db:"book_id"`
	Rating           int       `json:"rating" db:"rating"`
	Title            string    `json:"title" db:"title"`
	Comment          string    `json:"comment" db:"comment"`
	HelpfulCount     int       `json:"helpful_count" db:"helpful_count"`
	VerifiedBorrower bool      `json:"verified_borrower" db:"verified_borrower"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Priority orders wishlist entries.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// WishlistItem is a book a member wants to read later.
type WishlistItem struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	UserID              uuid.UUID `json:"user_id" db:"user_id"`
	BookID              uuid.UUID `json:"book_id" db:"book_id"`
	Priority            Priority  `json:"priority" db:"priority"`
	Notes               string    `json:"notes,omitempty" db:"notes"`
	NotifyWhenAvailable bool      `json:"notify_when_available" db:"notify_when_available"`
	AddedAt             time.Time `json:"added_at" db:"added_at"`
}

// Mean returns the arithmetic mean of ratings rounded to two places. ok
// is false when there are no ratings.
func Mean(ratings []int) (mean decimal.Decimal, ok bool) {
	if len(ratings) == 0 {
		return decimal.Zero, false
	}
	var sum int64
	for _, r := range ratings {
		sum += int64(r)
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(ratings)))).Round(2), true
}
