// internal/review/implementation.go
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/errs"
	"librarium/internal/logging"
	"librarium/internal/validation"
)

// service implements the Service interface.
type service struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the review service.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new review service instance.
func NewService(store Store, logger *zap.Logger, opts ...Option) Service {
	s := &service{
		store:  store,
		logger: logging.OrNop(logger).Named("review"),
		tracer: otel.Tracer("librarium/review"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReview stores the user's review of a book and refreshes the
// book's rating.
func (s *service) CreateReview(ctx context.Context, userID, bookID uuid.UUID, in ReviewInput) (*Review, error) {
	ctx, span := s.tracer.Start(ctx, "review.create",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("book.id", bookID.String()),
			attribute.Int("review.rating", in.Rating),
		),
	)
	defer span.End()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rev := &Review{
		ID:        uuid.New(),
		UserID:    userID,
		BookID:    bookID,
		Rating:    in.Rating,
		Title:     strings.TrimSpace(in.Title),
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var book *catalog.Book
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if rev.VerifiedBorrower, err = tx.HasReturnedBorrow(ctx, userID, bookID); err != nil {
			return err
		}
		if err := tx.InsertReview(ctx, rev); err != nil {
			return err
		}
		if err := s.refreshRating(ctx, tx, b, now); err != nil {
			return err
		}
		book = b
		return s.audit(ctx, tx, userID, audit.ActionCreate, rev, fmt.Sprintf("Reviewed book: %s", b.Title), now)
	})
	if err != nil {
		return nil, fmt.Errorf("create review of book %s: %w", bookID, err)
	}

	s.logger.Info("review created",
		zap.String("review_id", rev.ID.String()),
		zap.String("book_id", bookID.String()),
		zap.Int("rating", rev.Rating),
		zap.String("book_rating", book.Rating.StringFixed(2)),
	)
	return rev, nil
}

// UpdateReview edits a review owned by userID.
func (s *service) UpdateReview(ctx context.Context, userID, reviewID uuid.UUID, in ReviewInput) (*Review, error) {
	ctx, span := s.tracer.Start(ctx, "review.update",
		trace.WithAttributes(attribute.String("review.id", reviewID.String())),
	)
	defer span.End()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.owned(ctx, userID, reviewID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var rev *Review
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBook(ctx, existing.BookID)
		if err != nil {
			return err
		}
		r, err := tx.LockReview(ctx, reviewID)
		if err != nil {
			return err
		}
		r.Rating = in.Rating
		r.Title = strings.TrimSpace(in.Title)
		r.Comment = strings.TrimSpace(in.Comment)
		if r.VerifiedBorrower, err = tx.HasReturnedBorrow(ctx, userID, r.BookID); err != nil {
			return err
		}
		r.UpdatedAt = now
		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}
		if err := s.refreshRating(ctx, tx, b, now); err != nil {
			return err
		}
		rev = r
		return s.audit(ctx, tx, userID, audit.ActionUpdate, r, fmt.Sprintf("Updated review of book: %s", b.Title), now)
	})
	if err != nil {
		return nil, fmt.Errorf("update review %s: %w", reviewID, err)
	}

	s.logger.Info("review updated", zap.String("review_id", reviewID.String()), zap.Int("rating", rev.Rating))
	return rev, nil
}

// DeleteReview removes a review owned by userID and refreshes the rating.
func (s *service) DeleteReview(ctx context.Context, userID, reviewID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "review.delete",
		trace.WithAttributes(attribute.String("review.id", reviewID.String())),
	)
	defer span.End()

	existing, err := s.owned(ctx, userID, reviewID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBook(ctx, existing.BookID)
		if err != nil {
			return err
		}
		if err := tx.DeleteReview(ctx, reviewID); err != nil {
			return err
		}
		if err := s.refreshRating(ctx, tx, b, now); err != nil {
			return err
		}
		return s.audit(ctx, tx, userID, audit.ActionDelete, existing, fmt.Sprintf("Deleted review of book: %s", b.Title), now)
	})
	if err != nil {
		return fmt.Errorf("delete review %s: %w", reviewID, err)
	}

	s.logger.Info("review deleted", zap.String("review_id", reviewID.String()))
	return nil
}

// MarkHelpful increments the helpful counter of a review.
func (s *service) MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*Review, error) {
	ctx, span := s.tracer.Start(ctx, "review.mark_helpful",
		trace.WithAttributes(attribute.String("review.id", reviewID.String())),
	)
	defer span.End()

	var rev *Review
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockReview(ctx, reviewID)
		if err != nil {
			return err
		}
		r.HelpfulCount++
		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}
		rev = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark review %s helpful: %w", reviewID, err)
	}
	return rev, nil
}

// BookReviews lists the reviews of a book, newest first.
func (s *service) BookReviews(ctx context.Context, bookID uuid.UUID) ([]*Review, error) {
	ctx, span := s.tracer.Start(ctx, "review.list",
		trace.WithAttributes(attribute.String("book.id", bookID.String())),
	)
	defer span.End()

	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, fmt.Errorf("get book %s: %w", bookID, err)
	}
	list, err := s.store.ListReviews(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews of book %s: %w", bookID, err)
	}
	return list, nil
}

// owned loads a review and hides it from anyone but its author.
func (s *service) owned(ctx context.Context, userID, reviewID uuid.UUID) (*Review, error) {
	r, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", reviewID, err)
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("review %s: %w", reviewID, errs.ErrForbidden)
	}
	return r, nil
}

// refreshRating sets the book rating to the mean of its reviews. A book
// without reviews keeps its last rating.
func (s *service) refreshRating(ctx context.Context, tx Tx, b *catalog.Book, now time.Time) error {
	ratings, err := tx.BookRatings(ctx, b.ID)
	if err != nil {
		return err
	}
	mean, ok := Mean(ratings)
	if !ok {
		return nil
	}
	b.Rating = mean
	b.UpdatedAt = now
	return tx.UpdateBook(ctx, b)
}

func (s *service) audit(ctx context.Context, tx Tx, userID uuid.UUID, action audit.Action, r *Review, description string, now time.Time) error {
	entry, err := audit.NewEntry(userID, action, "Review", r.ID, description, r, now)
	if err != nil {
		return err
	}
	return tx.AppendAudit(ctx, entry)
}

// AddToWishlist puts a book on the user's wishlist.
func (s *service) AddToWishlist(ctx context.Context, userID, bookID uuid.UUID, in WishlistInput) (*WishlistItem, error) {
	ctx, span := s.tracer.Start(ctx, "review.wishlist_add",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", errs.ErrInvalidInput, in.Priority)
	}
	notify := true
	if in.NotifyWhenAvailable != nil {
		notify = *in.NotifyWhenAvailable
	}

	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, fmt.Errorf("get book %s: %w", bookID, err)
	}
	item := &WishlistItem{
		ID:                  uuid.New(),
		UserID:              userID,
		BookID:              bookID,
		Priority:            priority,
		Notes:               strings.TrimSpace(in.Notes),
		NotifyWhenAvailable: notify,
		AddedAt:             s.now().UTC(),
	}
	if err := s.store.InsertWishlistItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add book %s to wishlist: %w", bookID, err)
	}
	return item, nil
}

// RemoveFromWishlist takes a book off the user's wishlist.
func (s *service) RemoveFromWishlist(ctx context.Context, userID, bookID uuid.UUID) error {
	if err := s.store.DeleteWishlistItem(ctx, userID, bookID); err != nil {
		return fmt.Errorf("remove book %s from wishlist: %w", bookID, err)
	}
	return nil
}

// Wishlist lists the user's wishlist, newest first.
func (s *service) Wishlist(ctx context.Context, userID uuid.UUID) ([]*WishlistItem, error) {
	items, err := s.store.ListWishlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist of %s: %w", userID, err)
	}
	return items, nil
}
