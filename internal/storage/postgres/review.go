// internal/storage/postgres/review.go
package postgres

import (
	"context"

	"github.com/google/uuid"

	"librarium/internal/review"
)

const reviewColumns = `id, user_id, book_id, rating, title, comment, helpful_count,
	verified_borrower, created_at, updated_at`

const wishlistColumns = `id, user_id, book_id, priority, notes, notify_when_available, added_at`

func (s *Store) GetReview(ctx context.Context, id uuid.UUID) (*review.Review, error) {
	var r review.Review
	err := s.db.GetContext(ctx, &r, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, "review", id)
	}
	return &r, nil
}

func (s *Store) ListReviews(ctx context.Context, bookID uuid.UUID) ([]*review.Review, error) {
	list := []*review.Review{}
	err := s.db.SelectContext(ctx, &list, `
		SELECT `+reviewColumns+` FROM reviews WHERE book_id = $1 ORDER BY created_at DESC, id ASC
	`, bookID)
	if err != nil {
		return nil, mapError(err, "reviews", bookID)
	}
	return list, nil
}

func (s *Store) InsertWishlistItem(ctx context.Context, item *review.WishlistItem) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO wishlist_items (`+wishlistColumns+`)
		VALUES (:id, :user_id, :book_id, :priority, :notes, :notify_when_available, :added_at)
	`, item)
	return mapError(err, "wishlist entry", item.BookID)
}

func (s *Store) DeleteWishlistItem(ctx context.Context, userID, bookID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wishlist_items WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	if err != nil {
		return mapError(err, "wishlist entry for book", bookID)
	}
	return expectOne(res, "wishlist entry for book", bookID)
}

func (s *Store) ListWishlist(ctx context.Context, userID uuid.UUID) ([]*review.WishlistItem, error) {
	list := []*review.WishlistItem{}
	err := s.db.SelectContext(ctx, &list, `
		SELECT `+wishlistColumns+` FROM wishlist_items WHERE user_id = $1 ORDER BY added_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, mapError(err, "wishlist", userID)
	}
	return list, nil
}

func (t *tx) InsertReview(ctx context.Context, r *review.Review) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (:id, :user_id, :book_id, :rating, :title, :comment, :helpful_count,
			:verified_borrower, :created_at, :updated_at)
	`, r)
	return mapError(err, "review", r.ID)
}

func (t *tx) LockReview(ctx context.Context, id uuid.UUID) (*review.Review, error) {
	var r review.Review
	err := t.tx.GetContext(ctx, &r, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapError(err, "review", id)
	}
	return &r, nil
}

func (t *tx) UpdateReview(ctx context.Context, r *review.Review) error {
	return namedUpdate(ctx, t.tx, `
		UPDATE reviews SET
			rating = :rating, title = :title, comment = :comment, helpful_count = :helpful_count,
			verified_borrower = :verified_borrower, updated_at = :updated_at
		WHERE id = :id
	`, r, "review", r.ID)
}

func (t *tx) DeleteReview(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "review", id)
	}
	return expectOne(res, "review", id)
}

func (t *tx) BookRatings(ctx context.Context, bookID uuid.UUID) ([]int, error) {
	var ratings []int
	if err := t.tx.SelectContext(ctx, &ratings, `SELECT rating FROM reviews WHERE book_id = $1`, bookID); err != nil {
		return nil, mapError(err, "ratings", bookID)
	}
	return ratings, nil
}
