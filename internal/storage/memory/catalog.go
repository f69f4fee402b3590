// internal/storage/memory/catalog.go
package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/membership"
	"librarium/internal/review"
)

func (s *Store) InsertBook(_ context.Context, b *catalog.Book) error {
	return s.update(func(st *state) error {
		if b.ISBN != "" {
			for _, other := range st.books {
				if other.ISBN == b.ISBN {
					return catalog.ErrDuplicateISBN
				}
			}
		}
		st.books[b.ID] = *b
		return nil
	})
}

func (s *Store) GetBook(_ context.Context, id uuid.UUID) (*catalog.Book, error) {
	var out catalog.Book
	err := s.view(func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return notFound("book", id)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ModifyBook(_ context.Context, id uuid.UUID, fn func(*catalog.Book) error) (*catalog.Book, error) {
	var out catalog.Book
	err := s.update(func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return notFound("book", id)
		}
		if err := fn(&b); err != nil {
			return err
		}
		if b.ISBN != "" {
			for otherID, other := range st.books {
				if otherID != id && other.ISBN == b.ISBN {
					return catalog.ErrDuplicateISBN
				}
			}
		}
		st.books[id] = b
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteBook(_ context.Context, id uuid.UUID) error {
	return s.update(func(st *state) error {
		if _, ok := st.books[id]; !ok {
			return notFound("book", id)
		}
		for _, r := range st.borrows {
			if r.BookID == id && r.IsOpen() {
				return catalog.ErrBookInUse
			}
		}
		for _, r := range st.reservations {
			if r.BookID == id && r.Status == circulation.ReservationActive {
				return catalog.ErrBookInUse
			}
		}

		deleteWhere(st.borrows, func(r circulation.BorrowRecord) bool { return r.BookID == id })
		deleteWhere(st.reservations, func(r circulation.Reservation) bool { return r.BookID == id })
		deleteWhere(st.reviews, func(r review.Review) bool { return r.BookID == id })
		deleteWhere(st.wishlist, func(w review.WishlistItem) bool { return w.BookID == id })
		delete(st.books, id)
		return nil
	})
}

func deleteWhere[V any](m map[uuid.UUID]V, match func(V) bool) {
	for k, v := range m {
		if match(v) {
			delete(m, k)
		}
	}
}

func (s *Store) ListBooks(_ context.Context, f catalog.Filter) ([]*catalog.Book, error) {
	var out []*catalog.Book
	err := s.view(func(st *state) error {
		q := strings.ToLower(strings.TrimSpace(f.Query))
		for _, b := range st.books {
			if !matchesBook(b, q, f) {
				continue
			}
			b := b
			out = append(out, &b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortBooks(out, f.OrderBy)
	if f.Offset >= len(out) {
		return []*catalog.Book{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesBook(b catalog.Book, q string, f catalog.Filter) bool {
	if q != "" {
		hay := strings.ToLower(strings.Join([]string{b.Title, b.Author, b.ISBN, b.Publisher}, "\x00"))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if f.Category != "" && b.Category != f.Category {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.AvailableOnly && !b.IsAvailable() {
		return false
	}
	return true
}

func sortBooks(books []*catalog.Book, order string) {
	desc := strings.HasPrefix(order, "-")
	field := strings.TrimPrefix(order, "-")

	less := func(a, b *catalog.Book) int {
		switch field {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "author":
			return strings.Compare(a.Author, b.Author)
		case "published_year":
			return a.PublishedYear - b.PublishedYear
		case "rating":
			return a.Rating.Cmp(b.Rating)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(books, func(i, j int) bool {
		c := less(books[i], books[j])
		if c == 0 {
			return strings.Compare(books[i].ID.String(), books[j].ID.String()) < 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (s *Store) InsertProfile(_ context.Context, p *membership.Profile) error {
	return s.update(func(st *state) error {
		if _, ok := st.profiles[p.UserID]; ok {
			return membership.ErrDuplicateProfile
		}
		st.profiles[p.UserID] = *p
		return nil
	})
}

func (s *Store) GetProfile(_ context.Context, userID uuid.UUID) (*membership.Profile, error) {
	var out membership.Profile
	err := s.view(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return notFound("profile", userID)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ModifyProfile(_ context.Context, userID uuid.UUID, fn func(*membership.Profile) error) (*membership.Profile, error) {
	var out membership.Profile
	err := s.update(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return notFound("profile", userID)
		}
		if err := fn(&p); err != nil {
			return err
		}
		st.profiles[userID] = p
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ModifyProfileWithLoans(_ context.Context, userID uuid.UUID, fn func(*membership.Profile, int) error) (*membership.Profile, error) {
	var out membership.Profile
	err := s.update(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return notFound("profile", userID)
		}
		open := 0
		for _, r := range st.borrows {
			if r.UserID == userID && r.IsOpen() {
				open++
			}
		}
		if err := fn(&p, open); err != nil {
			return err
		}
		st.profiles[userID] = p
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
