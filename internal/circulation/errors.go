// internal/circulation/errors.go
package circulation

import (
	"librarium/internal/errs"
)

var (
	ErrBorrowDenied         = errs.Define(errs.ErrConflict, "borrow_denied", "borrow denied")
	ErrAlreadyReturned      = errs.Define(errs.ErrConflict, "already_returned", "borrow record is already closed")
	ErrDuplicateReservation = errs.Define(errs.ErrConflict, "duplicate_reservation", "an active reservation for this book already exists")
	ErrInvalidTransition    = errs.Define(errs.ErrConflict, "invalid_transition", "invalid status transition")
	ErrNoFineDue            = errs.Define(errs.ErrConflict, "no_fine_due", "no unpaid fine on this record")
	ErrDuplicateBorrow      = errs.Define(errs.ErrConflict, "duplicate_borrow", "an open borrow record for this book already exists")
)

// DenyReason names the precondition a borrow request failed.
type DenyReason string

const (
	ReasonNoMembership   DenyReason = "no_membership"
	ReasonInactive       DenyReason = "membership_inactive"
	ReasonLimitReached   DenyReason = "limit_reached"
	ReasonUnavailable    DenyReason = "book_unavailable"
	ReasonAlreadyHolding DenyReason = "already_borrowed"
)

var denyMessages = map[DenyReason]string{
	ReasonNoMembership:   "no membership profile",
	ReasonInactive:       "membership is not active",
	ReasonLimitReached:   "borrowing limit reached",
	ReasonUnavailable:    "book is not available",
	ReasonAlreadyHolding: "book is already borrowed by this member",
}

// BorrowDeniedError reports why a borrow request was rejected. It matches
// ErrBorrowDenied with errors.Is.
type BorrowDeniedError struct {
	Reason DenyReason
}

func deny(reason DenyReason) *BorrowDeniedError {
	return &BorrowDeniedError{Reason: reason}
}

func (e *BorrowDeniedError) Error() string {
	return "borrow denied: " + denyMessages[e.Reason]
}

func (e *BorrowDeniedError) Unwrap() error { return ErrBorrowDenied }
