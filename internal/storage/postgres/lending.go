// internal/storage/postgres/lending.go
package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"librarium/internal/circulation"
)

const borrowColumns = `id, user_id, book_id, borrowed_at, due_date, returned_at, status,
	fine_amount, fine_paid, notes, updated_at`

const reservationColumns = `id, user_id, book_id, reserved_at, expires_at, status, notified, updated_at`

func (s *Store) GetBorrow(ctx context.Context, id uuid.UUID) (*circulation.BorrowRecord, error) {
	var r circulation.BorrowRecord
	err := s.db.GetContext(ctx, &r, `SELECT `+borrowColumns+` FROM borrow_records WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, "borrow record", id)
	}
	return &r, nil
}

func (s *Store) ListBorrows(ctx context.Context, q circulation.BorrowQuery) ([]*circulation.BorrowRecord, error) {
	ds := builder().From("borrow_records").Prepared(true).
		Select(goqu.L(borrowColumns))
	if q.UserID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"user_id": q.UserID})
	}
	if q.BookID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"book_id": q.BookID})
	}
	if len(q.Statuses) > 0 {
		ds = ds.Where(goqu.C("status").In(statusArgs(q.Statuses)...))
	}
	if !q.DueOn.IsZero() {
		ds = ds.Where(goqu.Ex{"due_date": q.DueOn.UTC()})
	}
	ds = ds.Order(goqu.I("borrowed_at").Desc(), goqu.I("id").Asc())

	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	records := []*circulation.BorrowRecord{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, mapError(err, "borrow records", uuid.Nil)
	}
	return records, nil
}

func (s *Store) ListReservations(ctx context.Context, q circulation.ReservationQuery) ([]*circulation.Reservation, error) {
	ds := builder().From("reservations").Prepared(true).
		Select(goqu.L(reservationColumns))
	if q.UserID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"user_id": q.UserID})
	}
	if q.BookID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"book_id": q.BookID})
	}
	if len(q.Statuses) > 0 {
		ds = ds.Where(goqu.C("status").In(statusArgs(q.Statuses)...))
	}
	ds = ds.Order(goqu.I("reserved_at").Desc(), goqu.I("id").Asc())

	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	list := []*circulation.Reservation{}
	if err := s.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, mapError(err, "reservations", uuid.Nil)
	}
	return list, nil
}

// statusArgs flattens a typed status list into IN arguments.
func statusArgs[S ~string](list []S) []interface{} {
	out := make([]interface{}, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func (s *Store) MarkOverdue(ctx context.Context, today, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE borrow_records SET status = $1, updated_at = $2
		WHERE status = $3 AND due_date < $4
	`, circulation.LoanOverdue, at, circulation.LoanBorrowed, today.UTC())
	if err != nil {
		return 0, mapError(err, "mark overdue", uuid.Nil)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) ExpireReservations(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	ds := builder().Update("reservations").Prepared(true).
		Set(goqu.Record{"status": string(circulation.ReservationExpired), "updated_at": now}).
		Where(
			goqu.Ex{"status": string(circulation.ReservationActive)},
			goqu.C("expires_at").Lt(now),
		)
	if userID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"user_id": userID})
	}
	query, args, err := build(ds)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "expire reservations", userID)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *tx) CountOpenBorrows(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM borrow_records WHERE user_id = $1 AND status IN ($2, $3)
	`, userID, circulation.LoanBorrowed, circulation.LoanOverdue)
	if err != nil {
		return 0, mapError(err, "count open borrows", userID)
	}
	return n, nil
}

func (t *tx) HasOpenBorrow(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM borrow_records
			WHERE user_id = $1 AND book_id = $2 AND status IN ($3, $4)
		)
	`, userID, bookID, circulation.LoanBorrowed, circulation.LoanOverdue)
	if err != nil {
		return false, mapError(err, "open borrow", bookID)
	}
	return exists, nil
}

func (t *tx) HasReturnedBorrow(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM borrow_records
			WHERE user_id = $1 AND book_id = $2 AND status = $3
		)
	`, userID, bookID, circulation.LoanReturned)
	if err != nil {
		return false, mapError(err, "returned borrow", bookID)
	}
	return exists, nil
}

func (t *tx) InsertBorrow(ctx context.Context, r *circulation.BorrowRecord) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO borrow_records (`+borrowColumns+`)
		VALUES (:id, :user_id, :book_id, :borrowed_at, :due_date, :returned_at, :status,
			:fine_amount, :fine_paid, :notes, :updated_at)
	`, r)
	return mapError(err, "borrow record", r.ID)
}

func (t *tx) LockBorrow(ctx context.Context, id uuid.UUID) (*circulation.BorrowRecord, error) {
	var r circulation.BorrowRecord
	err := t.tx.GetContext(ctx, &r, `SELECT `+borrowColumns+` FROM borrow_records WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapError(err, "borrow record", id)
	}
	return &r, nil
}

func (t *tx) UpdateBorrow(ctx context.Context, r *circulation.BorrowRecord) error {
	return namedUpdate(ctx, t.tx, `
		UPDATE borrow_records SET
			due_date = :due_date, returned_at = :returned_at, status = :status,
			fine_amount = :fine_amount, fine_paid = :fine_paid, notes = :notes, updated_at = :updated_at
		WHERE id = :id
	`, r, "borrow record", r.ID)
}

func (t *tx) FindActiveReservation(ctx context.Context, userID, bookID uuid.UUID) (*circulation.Reservation, error) {
	list := []*circulation.Reservation{}
	err := t.tx.SelectContext(ctx, &list, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1 AND book_id = $2 AND status = $3
		FOR UPDATE
	`, userID, bookID, circulation.ReservationActive)
	if err != nil {
		return nil, mapError(err, "reservation", bookID)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (t *tx) InsertReservation(ctx context.Context, r *circulation.Reservation) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (:id, :user_id, :book_id, :reserved_at, :expires_at, :status, :notified, :updated_at)
	`, r)
	return mapError(err, "reservation", r.ID)
}

func (t *tx) LockReservation(ctx context.Context, id uuid.UUID) (*circulation.Reservation, error) {
	var r circulation.Reservation
	err := t.tx.GetContext(ctx, &r, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapError(err, "reservation", id)
	}
	return &r, nil
}

func (t *tx) UpdateReservation(ctx context.Context, r *circulation.Reservation) error {
	return namedUpdate(ctx, t.tx, `
		UPDATE reservations SET
			expires_at = :expires_at, status = :status, notified = :notified, updated_at = :updated_at
		WHERE id = :id
	`, r, "reservation", r.ID)
}

// NextQueuedReservation skips rows another transaction holds so two
// concurrent returns of the same title notify different members.
func (t *tx) NextQueuedReservation(ctx context.Context, bookID uuid.UUID, now time.Time) (*circulation.Reservation, error) {
	list := []*circulation.Reservation{}
	err := t.tx.SelectContext(ctx, &list, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE book_id = $1 AND status = $2 AND NOT notified AND expires_at >= $3
		ORDER BY reserved_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, bookID, circulation.ReservationActive, now)
	if err != nil {
		return nil, mapError(err, "reservation queue", bookID)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
