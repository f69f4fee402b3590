// internal/storage/memory/review.go
package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"librarium/internal/review"
)

func (s *Store) GetReview(_ context.Context, id uuid.UUID) (*review.Review, error) {
	var out review.Review
	err := s.view(func(st *state) error {
		r, ok := st.reviews[id]
		if !ok {
			return notFound("review", id)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListReviews(_ context.Context, bookID uuid.UUID) ([]*review.Review, error) {
	out := []*review.Review{}
	err := s.view(func(st *state) error {
		for _, r := range st.reviews {
			if r.BookID == bookID {
				r := r
				out = append(out, &r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (s *Store) InsertWishlistItem(_ context.Context, item *review.WishlistItem) error {
	return s.update(func(st *state) error {
		for _, w := range st.wishlist {
			if w.UserID == item.UserID && w.BookID == item.BookID {
				return review.ErrDuplicateWishlist
			}
		}
		st.wishlist[item.ID] = *item
		return nil
	})
}

func (s *Store) DeleteWishlistItem(_ context.Context, userID, bookID uuid.UUID) error {
	return s.update(func(st *state) error {
		for id, w := range st.wishlist {
			if w.UserID == userID && w.BookID == bookID {
				delete(st.wishlist, id)
				return nil
			}
		}
		return notFound("wishlist entry for book", bookID)
	})
}

func (s *Store) ListWishlist(_ context.Context, userID uuid.UUID) ([]*review.WishlistItem, error) {
	out := []*review.WishlistItem{}
	err := s.view(func(st *state) error {
		for _, w := range st.wishlist {
			if w.UserID == userID {
				w := w
				out = append(out, &w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out, err
}

func (t *tx) InsertReview(_ context.Context, r *review.Review) error {
	for _, other := range t.st.reviews {
		if other.UserID == r.UserID && other.BookID == r.BookID {
			return review.ErrDuplicateReview
		}
	}
	t.st.reviews[r.ID] = *r
	return nil
}

func (t *tx) LockReview(_ context.Context, id uuid.UUID) (*review.Review, error) {
	r, ok := t.st.reviews[id]
	if !ok {
		return nil, notFound("review", id)
	}
	return &r, nil
}

func (t *tx) UpdateReview(_ context.Context, r *review.Review) error {
	if _, ok := t.st.reviews[r.ID]; !ok {
		return notFound("review", r.ID)
	}
	t.st.reviews[r.ID] = *r
	return nil
}

func (t *tx) DeleteReview(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.reviews[id]; !ok {
		return notFound("review", id)
	}
	delete(t.st.reviews, id)
	return nil
}

func (t *tx) BookRatings(_ context.Context, bookID uuid.UUID) ([]int, error) {
	var ratings []int
	for _, r := range t.st.reviews {
		if r.BookID == bookID {
			ratings = append(ratings, r.Rating)
		}
	}
	return ratings, nil
}
