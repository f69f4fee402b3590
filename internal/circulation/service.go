// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/membership"
)

// Service defines the interface for the circulation service.
type Service interface {
	Borrow(ctx context.Context, req BorrowRequest) (*BorrowRecord, error)
	Return(ctx context.Context, userID, recordID uuid.UUID) (*BorrowRecord, error)
	MarkLost(ctx context.Context, recordID uuid.UUID, notes string) (*BorrowRecord, error)
	PayFine(ctx context.Context, userID, recordID uuid.UUID) (*BorrowRecord, error)

	Reserve(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error)
	CancelReservation(ctx context.Context, userID, reservationID uuid.UUID) (*Reservation, error)
	Reservations(ctx context.Context, userID uuid.UUID) ([]*Reservation, error)

	OpenBorrows(ctx context.Context, userID uuid.UUID) ([]*BorrowRecord, error)
	History(ctx context.Context, userID uuid.UUID) ([]*BorrowRecord, error)
	OverdueBorrows(ctx context.Context) ([]*BorrowRecord, error)

	// Sweeps. Each is idempotent and returns how many records it changed
	// or notified.
	MarkOverdue(ctx context.Context, today time.Time) (int, error)
	ExpireReservations(ctx context.Context, now time.Time) (int, error)
	SendDueReminders(ctx context.Context, today time.Time) (int, error)
	SendOverdueNotices(ctx context.Context, today time.Time) (int, error)
}

// BorrowRequest is the input for Borrow. Days defaults to the configured
// loan period when zero.
type BorrowRequest struct {
	UserID uuid.UUID `json:"-" validate:"required"`
	BookID uuid.UUID `json:"-" validate:"required"`
	Days   int       `json:"days" validate:"min=0"`
}

// Store is the persistence the circulation service needs. Mutations that
// touch more than one row run inside InTx.
type Store interface {
	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	GetBorrow(ctx context.Context, id uuid.UUID) (*BorrowRecord, error)
	ListBorrows(ctx context.Context, q BorrowQuery) ([]*BorrowRecord, error)
	ListReservations(ctx context.Context, q ReservationQuery) ([]*Reservation, error)

	// MarkOverdue moves every Borrowed record due before today to Overdue.
	MarkOverdue(ctx context.Context, today time.Time, at time.Time) (int, error)
	// ExpireReservations moves every Active reservation that expired
	// before now to Expired. A zero userID matches every user.
	ExpireReservations(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
}

// Tx is the transactional view of the store. Lock methods take a row lock
// held until the transaction ends; callers lock book before profile.
type Tx interface {
	LockBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	UpdateBook(ctx context.Context, b *catalog.Book) error

	// LockProfile returns errs.ErrNotFound when the user has no profile.
	LockProfile(ctx context.Context, userID uuid.UUID) (*membership.Profile, error)
	UpdateProfile(ctx context.Context, p *membership.Profile) error

	CountOpenBorrows(ctx context.Context, userID uuid.UUID) (int, error)
	HasOpenBorrow(ctx context.Context, userID, bookID uuid.UUID) (bool, error)
	// InsertBorrow returns ErrDuplicateBorrow when the user already has an
	// open record for the book.
	InsertBorrow(ctx context.Context, r *BorrowRecord) error
	LockBorrow(ctx context.Context, id uuid.UUID) (*BorrowRecord, error)
	UpdateBorrow(ctx context.Context, r *BorrowRecord) error

	// FindActiveReservation returns nil when the user holds no Active
	// reservation for the book.
	FindActiveReservation(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error)
	// InsertReservation returns ErrDuplicateReservation when an Active
	// reservation already exists for the pair.
	InsertReservation(ctx context.Context, r *Reservation) error
	LockReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
	// NextQueuedReservation locks and returns the earliest Active,
	// unnotified reservation for the book that has not expired at now, or
	// nil when the queue is empty. Rows locked by other transactions are
	// skipped.
	NextQueuedReservation(ctx context.Context, bookID uuid.UUID, now time.Time) (*Reservation, error)

	AppendAudit(ctx context.Context, e *audit.Entry) error
}
