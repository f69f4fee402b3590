// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the state of a borrow record.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "Borrowed"
	LoanReturned LoanStatus = "Returned"
	LoanOverdue  LoanStatus = "Overdue"
	LoanLost     LoanStatus = "Lost"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanBorrowed: {LoanOverdue, LoanReturned, LoanLost},
	LoanOverdue:  {LoanReturned, LoanLost},
}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanBorrowed, LoanReturned, LoanOverdue, LoanLost:
		return true
	}
	return false
}

// Open reports whether the loan still holds a copy.
func (s LoanStatus) Open() bool {
	return s == LoanBorrowed || s == LoanOverdue
}

// CanTransitionTo reports whether a record may move from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OpenStatuses are the statuses counted against a member's limit.
var OpenStatuses = []LoanStatus{LoanBorrowed, LoanOverdue}

// ReservationStatus is the state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "Active"
	ReservationFulfilled ReservationStatus = "Fulfilled"
	ReservationCancelled ReservationStatus = "Cancelled"
	ReservationExpired   ReservationStatus = "Expired"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationActive: {ReservationFulfilled, ReservationCancelled, ReservationExpired},
}

// Valid reports whether s is a known reservation status.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationActive, ReservationFulfilled, ReservationCancelled, ReservationExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether a reservation may move from s to next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BorrowRecord is a single loan of one copy of a book to a member.
// DueDate is a calendar date stored as midnight UTC.
type BorrowRecord struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	BookID     uuid.UUID       `json:"book_id" db:"book_id"`
	BorrowedAt time.Time       `json:"borrowed_at" db:"borrowed_at"`
	DueDate    time.Time       `json:"due_date" db:"due_date"`
	ReturnedAt *time.Time      `json:"returned_at,omitempty" db:"returned_at"`
	Status     LoanStatus      `json:"status" db:"status"`
	FineAmount decimal.Decimal `json:"fine_amount" db:"fine_amount"`
	FinePaid   bool            `json:"fine_paid" db:"fine_paid"`
	Notes      string          `json:"notes,omitempty" db:"notes"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`

	// AccruedFine is the fine an open record would carry if returned on the
	// day it was listed. It is not stored.
	AccruedFine decimal.Decimal `json:"accrued_fine" db:"-"`
}

// IsOpen reports whether the record still holds a copy.
func (r *BorrowRecord) IsOpen() bool {
	return r.Status.Open()
}

// DaysOverdue returns how many days past the due date on is, or 0.
func (r *BorrowRecord) DaysOverdue(on time.Time) int {
	days := DaysBetween(r.DueDate, on)
	if days < 0 {
		return 0
	}
	return days
}

// UnpaidFine returns the fine still owed on a closed record.
func (r *BorrowRecord) UnpaidFine() decimal.Decimal {
	if r.FinePaid || !r.FineAmount.IsPositive() {
		return decimal.Zero
	}
	return r.FineAmount
}

// Reservation is a hold placed by a member on a book.
type Reservation struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	UserID     uuid.UUID         `json:"user_id" db:"user_id"`
	BookID     uuid.UUID         `json:"book_id" db:"book_id"`
	ReservedAt time.Time         `json:"reserved_at" db:"reserved_at"`
	ExpiresAt  time.Time         `json:"expires_at" db:"expires_at"`
	Status     ReservationStatus `json:"status" db:"status"`
	Notified   bool              `json:"notified" db:"notified"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether an Active reservation has passed its expiry.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && r.ExpiresAt.Before(now)
}

// BorrowQuery selects borrow records. Zero fields match everything.
type BorrowQuery struct {
	UserID   uuid.UUID
	BookID   uuid.UUID
	Statuses []LoanStatus
	// DueOn restricts the result to records due on that date.
	DueOn time.Time
}

// ReservationQuery selects reservations. Zero fields match everything.
type ReservationQuery struct {
	UserID   uuid.UUID
	BookID   uuid.UUID
	Statuses []ReservationStatus
}

// BookBorrowed is recorded when a copy leaves the shelf.
type BookBorrowed struct {
	RecordID      uuid.UUID `json:"record_id"`
	UserID        uuid.UUID `json:"user_id"`
	BookID        uuid.UUID `json:"book_id"`
	DueDate       string    `json:"due_date"`
	ReservationID uuid.UUID `json:"reservation_id,omitempty"`
}

// BookReturned is recorded when a copy comes back.
type BookReturned struct {
	RecordID            uuid.UUID       `json:"record_id"`
	UserID              uuid.UUID       `json:"user_id"`
	BookID              uuid.UUID       `json:"book_id"`
	ReturnedAt          time.Time       `json:"returned_at"`
	Fine                decimal.Decimal `json:"fine"`
	CopiesAvailable     int             `json:"copies_available"`
	NotifiedReservation uuid.UUID       `json:"notified_reservation_id,omitempty"`
}

// BookLost is recorded when staff write a copy off.
type BookLost struct {
	RecordID uuid.UUID       `json:"record_id"`
	UserID   uuid.UUID       `json:"user_id"`
	BookID   uuid.UUID       `json:"book_id"`
	Fine     decimal.Decimal `json:"fine"`
}

// FineSettled is recorded when a member settles a fine.
type FineSettled struct {
	RecordID uuid.UUID       `json:"record_id"`
	UserID   uuid.UUID       `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// ReservationChanged is recorded when a reservation is placed or cancelled.
type ReservationChanged struct {
	ReservationID uuid.UUID         `json:"reservation_id"`
	UserID        uuid.UUID         `json:"user_id"`
	BookID        uuid.UUID         `json:"book_id"`
	Status        ReservationStatus `json:"status"`
	ExpiresAt     time.Time         `json:"expires_at"`
}
