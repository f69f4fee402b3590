// internal/storage/memory/lending.go
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"librarium/internal/circulation"
)

func (s *Store) GetBorrow(_ context.Context, id uuid.UUID) (*circulation.BorrowRecord, error) {
	var out circulation.BorrowRecord
	err := s.view(func(st *state) error {
		r, ok := st.borrows[id]
		if !ok {
			return notFound("borrow record", id)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListBorrows(_ context.Context, q circulation.BorrowQuery) ([]*circulation.BorrowRecord, error) {
	out := []*circulation.BorrowRecord{}
	err := s.view(func(st *state) error {
		for _, r := range st.borrows {
			if q.UserID != uuid.Nil && r.UserID != q.UserID {
				continue
			}
			if q.BookID != uuid.Nil && r.BookID != q.BookID {
				continue
			}
			if len(q.Statuses) > 0 && !containsStatus(q.Statuses, r.Status) {
				continue
			}
			if !q.DueOn.IsZero() && !r.DueDate.Equal(q.DueOn) {
				continue
			}
			r := r
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BorrowedAt.After(out[j].BorrowedAt)
	})
	return out, nil
}

func containsStatus[S comparable](list []S, s S) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (s *Store) ListReservations(_ context.Context, q circulation.ReservationQuery) ([]*circulation.Reservation, error) {
	out := []*circulation.Reservation{}
	err := s.view(func(st *state) error {
		for _, r := range st.reservations {
			if q.UserID != uuid.Nil && r.UserID != q.UserID {
				continue
			}
			if q.BookID != uuid.Nil && r.BookID != q.BookID {
				continue
			}
			if len(q.Statuses) > 0 && !containsStatus(q.Statuses, r.Status) {
				continue
			}
			r := r
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReservedAt.After(out[j].ReservedAt)
	})
	return out, nil
}

func (s *Store) MarkOverdue(_ context.Context, today, at time.Time) (int, error) {
	n := 0
	err := s.update(func(st *state) error {
		for id, r := range st.borrows {
			if r.Status == circulation.LoanBorrowed && r.DueDate.Before(today) {
				r.Status = circulation.LoanOverdue
				r.UpdatedAt = at
				st.borrows[id] = r
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) ExpireReservations(_ context.Context, userID uuid.UUID, now time.Time) (int, error) {
	n := 0
	err := s.update(func(st *state) error {
		for id, r := range st.reservations {
			if userID != uuid.Nil && r.UserID != userID {
				continue
			}
			if r.IsExpired(now) {
				r.Status = circulation.ReservationExpired
				r.UpdatedAt = now
				st.reservations[id] = r
				n++
			}
		}
		return nil
	})
	return n, err
}

func (t *tx) CountOpenBorrows(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, r := range t.st.borrows {
		if r.UserID == userID && r.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (t *tx) HasOpenBorrow(_ context.Context, userID, bookID uuid.UUID) (bool, error) {
	for _, r := range t.st.borrows {
		if r.UserID == userID && r.BookID == bookID && r.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertBorrow(ctx context.Context, r *circulation.BorrowRecord) error {
	open, _ := t.HasOpenBorrow(ctx, r.UserID, r.BookID)
	if open {
		return circulation.ErrDuplicateBorrow
	}
	t.st.borrows[r.ID] = *r
	return nil
}

func (t *tx) LockBorrow(_ context.Context, id uuid.UUID) (*circulation.BorrowRecord, error) {
	r, ok := t.st.borrows[id]
	if !ok {
		return nil, notFound("borrow record", id)
	}
	return &r, nil
}

func (t *tx) UpdateBorrow(_ context.Context, r *circulation.BorrowRecord) error {
	if _, ok := t.st.borrows[r.ID]; !ok {
		return notFound("borrow record", r.ID)
	}
	t.st.borrows[r.ID] = *r
	return nil
}

func (t *tx) HasReturnedBorrow(_ context.Context, userID, bookID uuid.UUID) (bool, error) {
	for _, r := range t.st.borrows {
		if r.UserID == userID && r.BookID == bookID && r.Status == circulation.LoanReturned {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) FindActiveReservation(_ context.Context, userID, bookID uuid.UUID) (*circulation.Reservation, error) {
	for _, r := range t.st.reservations {
		if r.UserID == userID && r.BookID == bookID && r.Status == circulation.ReservationActive {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (t *tx) InsertReservation(ctx context.Context, r *circulation.Reservation) error {
	existing, _ := t.FindActiveReservation(ctx, r.UserID, r.BookID)
	if existing != nil && r.Status == circulation.ReservationActive {
		return circulation.ErrDuplicateReservation
	}
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *tx) LockReservation(_ context.Context, id uuid.UUID) (*circulation.Reservation, error) {
	r, ok := t.st.reservations[id]
	if !ok {
		return nil, notFound("reservation", id)
	}
	return &r, nil
}

func (t *tx) UpdateReservation(_ context.Context, r *circulation.Reservation) error {
	if _, ok := t.st.reservations[r.ID]; !ok {
		return notFound("reservation", r.ID)
	}
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *tx) NextQueuedReservation(_ context.Context, bookID uuid.UUID, now time.Time) (*circulation.Reservation, error) {
	var next *circulation.Reservation
	for _, r := range t.st.reservations {
		if r.BookID != bookID || r.Status != circulation.ReservationActive || r.Notified || r.ExpiresAt.Before(now) {
			continue
		}
		if next == nil || r.ReservedAt.Before(next.ReservedAt) ||
			(r.ReservedAt.Equal(next.ReservedAt) && r.ID.String() < next.ID.String()) {
			r := r
			next = &r
		}
	}
	return next, nil
}
