// internal/review/service.go
package review

import (
	"context"

	"github.com/google/uuid"

	"librarium/internal/audit"
	"librarium/internal/catalog"
)

// Service defines the interface for reviews and wishlists.
type Service interface {
	CreateReview(ctx context.Context, userID, bookID uuid.UUID, in ReviewInput) (*Review, error)
	UpdateReview(ctx context.Context, userID, reviewID uuid.UUID, in ReviewInput) (*Review, error)
	DeleteReview(ctx context.Context, userID, reviewID uuid.UUID) error
	MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*Review, error)
	BookReviews(ctx context.Context, bookID uuid.UUID) ([]*Review, error)

	AddToWishlist(ctx context.Context, userID, bookID uuid.UUID, in WishlistInput) (*WishlistItem, error)
	RemoveFromWishlist(ctx context.Context, userID, bookID uuid.UUID) error
	Wishlist(ctx context.Context, userID uuid.UUID) ([]*WishlistItem, error)
}

// Store is the persistence the review service needs.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetReview(ctx context.Context, id uuid.UUID) (*Review, error)
	ListReviews(ctx context.Context, bookID uuid.UUID) ([]*Review, error)

	GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	// InsertWishlistItem returns ErrDuplicateWishlist when the book is
	// already on the user's list.
	InsertWishlistItem(ctx context.Context, item *WishlistItem) error
	DeleteWishlistItem(ctx context.Context, userID, bookID uuid.UUID) error
	ListWishlist(ctx context.Context, userID uuid.UUID) ([]*WishlistItem, error)
}

// Tx is the transactional view of the store. Callers lock the book
// before any of its reviews.
type Tx interface {
	LockBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	UpdateBook(ctx context.Context, b *catalog.Book) error

	// InsertReview returns ErrDuplicateReview when the user already
	// reviewed the book.
	InsertReview(ctx context.Context, r *Review) error
	LockReview(ctx context.Context, id uuid.UUID) (*Review, error)
	UpdateReview(ctx context.Context, r *Review) error
	DeleteReview(ctx context.Context, id uuid.UUID) error
	BookRatings(ctx context.Context, bookID uuid.UUID) ([]int, error)

	HasReturnedBorrow(ctx context.Context, userID, bookID uuid.UUID) (bool, error)
	AppendAudit(ctx context.Context, e *audit.Entry) error
}

// ReviewInput is the editable part of a review.
type ReviewInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Title   string `json:"title" validate:"required,max=200"`
	Comment string `json:"comment" validate:"required"`
}

// WishlistInput is the editable part of a wishlist entry.
type WishlistInput struct {
	Priority            Priority `json:"priority"`
	Notes               string   `json:"notes"`
	NotifyWhenAvailable *bool    `json:"notify_when_available"`
}
