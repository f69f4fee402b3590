// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/errs"
	"librarium/internal/logging"
	"librarium/internal/notification"
	"librarium/internal/validation"
)

// Policy holds the lending rules.
type Policy struct {
	FinePerDay      decimal.Decimal
	DefaultLoanDays int
	MaxLoanDays     int
	ReservationDays int
}

// DefaultPolicy returns the standard lending rules.
func DefaultPolicy() Policy {
	return Policy{
		FinePerDay:      decimal.NewFromInt(1),
		DefaultLoanDays: 14,
		MaxLoanDays:     30,
		ReservationDays: 7,
	}
}

// service implements the Service interface.
type service struct {
	store   Store
	sink    notification.Sink
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics
	policy  Policy
	now     func() time.Time
	loc     *time.Location
}

// Option configures the circulation service.
type Option func(*service)

// WithPolicy replaces the default lending rules.
func WithPolicy(p Policy) Option {
	return func(s *service) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLocation sets the time zone that decides calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(s *service) { s.loc = loc }
}

// WithMeter records lending counters on meter instead of the global one.
func WithMeter(meter metric.Meter) Option {
	return func(s *service) { s.metrics = newMetrics(meter) }
}

type nopSink struct{}

func (nopSink) Notify(context.Context, notification.Notice) error { return nil }

// NewService creates a new circulation service instance. A nil sink drops
// every notice.
func NewService(store Store, sink notification.Sink, logger *zap.Logger, opts ...Option) Service {
	if sink == nil {
		sink = nopSink{}
	}
	s := &service{
		store:  store,
		sink:   sink,
		logger: logging.OrNop(logger).Named("circulation"),
		tracer: otel.Tracer("librarium/circulation"),
		policy: DefaultPolicy(),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(otel.Meter("librarium/circulation"))
	}
	return s
}

func (s *service) clock() (now, today time.Time) {
	now = s.now().UTC()
	return now, Day(now, s.loc)
}

// Borrow lends one copy of a book to a member.
func (s *service) Borrow(ctx context.Context, req BorrowRequest) (*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID.String()),
			attribute.String("book.id", req.BookID.String()),
		),
	)
	defer span.End()

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	days := req.Days
	if days == 0 {
		days = s.policy.DefaultLoanDays
	}
	if days < 1 || days > s.policy.MaxLoanDays {
		return nil, fmt.Errorf("%w: loan duration must be between 1 and %d days", errs.ErrInvalidInput, s.policy.MaxLoanDays)
	}

	now, today := s.clock()
	record := &BorrowRecord{
		ID:         uuid.New(),
		UserID:     req.UserID,
		BookID:     req.BookID,
		BorrowedAt: now,
		DueDate:    today.AddDate(0, 0, days),
		Status:     LoanBorrowed,
		FineAmount: decimal.Zero,
		UpdatedAt:  now,
	}

	var (
		book      *catalog.Book
		fulfilled *Reservation
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBook(ctx, req.BookID)
		if err != nil {
			return err
		}
		p, err := tx.LockProfile(ctx, req.UserID)
		if errors.Is(err, errs.ErrNotFound) {
			return deny(ReasonNoMembership)
		}
		if err != nil {
			return err
		}
		if !p.Active {
			return deny(ReasonInactive)
		}

		holding, err := tx.HasOpenBorrow(ctx, req.UserID, req.BookID)
		if err != nil {
			return err
		}
		if holding {
			return deny(ReasonAlreadyHolding)
		}
		open, err := tx.CountOpenBorrows(ctx, req.UserID)
		if err != nil {
			return err
		}
		if open >= p.MaxBooksAllowed {
			return deny(ReasonLimitReached)
		}
		if !b.IsAvailable() {
			return deny(ReasonUnavailable)
		}

		if err := b.CheckOut(); err != nil {
			return deny(ReasonUnavailable)
		}
		b.UpdatedAt = now
		if err := tx.UpdateBook(ctx, b); err != nil {
			return err
		}
		if err := tx.InsertBorrow(ctx, record); err != nil {
			if errors.Is(err, ErrDuplicateBorrow) {
				return deny(ReasonAlreadyHolding)
			}
			return err
		}

		res, err := tx.FindActiveReservation(ctx, req.UserID, req.BookID)
		if err != nil {
			return err
		}
		event := BookBorrowed{
			RecordID: record.ID,
			UserID:   record.UserID,
			BookID:   record.BookID,
			DueDate:  record.DueDate.UTC().Format(time.DateOnly),
		}
		if res != nil && !res.IsExpired(now) {
			res.Status = ReservationFulfilled
			res.UpdatedAt = now
			if err := tx.UpdateReservation(ctx, res); err != nil {
				return err
			}
			fulfilled = res
			event.ReservationID = res.ID
		}

		entry, err := audit.NewEntry(req.UserID, audit.ActionBorrow, "BorrowRecord", record.ID,
			fmt.Sprintf("Borrowed book: %s", b.Title), event, now)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		var denied *BorrowDeniedError
		if errors.As(err, &denied) {
			s.metrics.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(denied.Reason))))
			span.SetAttributes(attribute.String("borrow.denied", string(denied.Reason)))
			s.logger.Info("borrow denied",
				zap.String("user_id", req.UserID.String()),
				zap.String("book_id", req.BookID.String()),
				zap.String("reason", string(denied.Reason)),
			)
		} else {
			span.RecordError(err)
		}
		return nil, fmt.Errorf("borrow book %s: %w", req.BookID, err)
	}

	s.metrics.borrows.Add(ctx, 1)
	span.SetAttributes(attribute.String("borrow.id", record.ID.String()))
	fields := []zap.Field{
		zap.String("borrow_id", record.ID.String()),
		zap.String("user_id", record.UserID.String()),
		zap.String("book_id", record.BookID.String()),
		zap.String("due_date", record.DueDate.UTC().Format(time.DateOnly)),
		zap.Int("copies_available", book.CopiesAvailable),
	}
	if fulfilled != nil {
		fields = append(fields, zap.String("reservation_id", fulfilled.ID.String()))
	}
	s.logger.Info("book borrowed", fields...)

	s.emit(ctx, notification.Notice{
		UserID:  record.UserID,
		Type:    notification.TypeGeneral,
		Title:   "Book Borrowed Successfully",
		Message: fmt.Sprintf("You have borrowed %q. Due date: %s.", book.Title, record.DueDate.UTC().Format(time.DateOnly)),
		Link:    "/me/borrows",
		Ref:     record.ID,
	})
	return record, nil
}

// Return closes an open borrow record owned by userID, charges the late
// fine and alerts the next member waiting for the book.
func (s *service) Return(ctx context.Context, userID, recordID uuid.UUID) (*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("borrow.id", recordID.String()),
		),
	)
	defer span.End()

	now, today := s.clock()
	var (
		record *BorrowRecord
		book   *catalog.Book
		queued *Reservation
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockBorrow(ctx, recordID)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return fmt.Errorf("borrow record %s: %w", recordID, errs.ErrNotFound)
		}
		if !r.Status.CanTransitionTo(LoanReturned) {
			return ErrAlreadyReturned
		}

		b, err := tx.LockBook(ctx, r.BookID)
		if err != nil {
			return err
		}
		p, err := tx.LockProfile(ctx, r.UserID)
		if err != nil {
			return err
		}

		fine := Fine(r.DueDate, today, s.policy.FinePerDay)
		r.ReturnedAt = &now
		r.Status = LoanReturned
		r.FineAmount = fine
		r.FinePaid = false
		r.UpdatedAt = now
		if err := tx.UpdateBorrow(ctx, r); err != nil {
			return err
		}

		if !b.CheckIn() {
			s.logger.Warn("returned copy exceeds total copies, counter left unchanged",
				zap.String("book_id", b.ID.String()),
				zap.Int("total_copies", b.TotalCopies),
			)
		}
		b.UpdatedAt = now
		if err := tx.UpdateBook(ctx, b); err != nil {
			return err
		}

		if fine.IsPositive() {
			p.AddFine(fine)
			p.UpdatedAt = now
			if err := tx.UpdateProfile(ctx, p); err != nil {
				return err
			}
		}

		event := BookReturned{
			RecordID:        r.ID,
			UserID:          r.UserID,
			BookID:          r.BookID,
			ReturnedAt:      now,
			Fine:            fine,
			CopiesAvailable: b.CopiesAvailable,
		}
		// A book under Maintenance or held back as Reserved cannot be
		// borrowed, so the queue waits for the next return.
		if b.IsAvailable() {
			next, err := tx.NextQueuedReservation(ctx, b.ID, now)
			if err != nil {
				return err
			}
			if next != nil {
				next.Notified = true
				next.UpdatedAt = now
				if err := tx.UpdateReservation(ctx, next); err != nil {
					return err
				}
				queued = next
				event.NotifiedReservation = next.ID
			}
		}

		entry, err := audit.NewEntry(userID, audit.ActionReturn, "BorrowRecord", r.ID,
			fmt.Sprintf("Returned book: %s", b.Title), event, now)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		record, book = r, b
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyReturned) && !errors.Is(err, errs.ErrNotFound) {
			span.RecordError(err)
		}
		return nil, fmt.Errorf("return borrow record %s: %w", recordID, err)
	}

	s.metrics.returns.Add(ctx, 1)
	if record.FineAmount.IsPositive() {
		s.metrics.lateReturns.Add(ctx, 1)
	}
	s.logger.Info("book returned",
		zap.String("borrow_id", record.ID.String()),
		zap.String("user_id", record.UserID.String()),
		zap.String("book_id", record.BookID.String()),
		zap.String("fine", record.FineAmount.StringFixed(2)),
		zap.Int("copies_available", book.CopiesAvailable),
	)

	if queued != nil {
		expires := queued.ExpiresAt.In(s.loc).Format(time.DateOnly)
		s.emit(ctx, notification.Notice{
			UserID:  queued.UserID,
			Type:    notification.TypeAvailable,
			Title:   "Reserved Book Available",
			Message: fmt.Sprintf("%q is now available for pickup. Reservation expires on %s.", book.Title, expires),
			Link:    "/books/" + book.ID.String(),
			Ref:     queued.ID,
			Email: &notification.Email{
				Template: notification.TemplateBookAvailable,
				Data:     map[string]any{"BookTitle": book.Title, "ExpiresAt": expires},
			},
		})
	}
	if record.FineAmount.IsPositive() {
		s.emitFineDue(ctx, record, book.Title)
	}
	return record, nil
}

// MarkLost writes off an open loan. The accrued fine is charged and the
// copy stays off the shelf.
func (s *service) MarkLost(ctx context.Context, recordID uuid.UUID, notes string) (*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.mark_lost",
		trace.WithAttributes(attribute.String("borrow.id", recordID.String())),
	)
	defer span.End()

	now, today := s.clock()
	var record *BorrowRecord
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockBorrow(ctx, recordID)
		if err != nil {
			return err
		}
		if !r.Status.CanTransitionTo(LoanLost) {
			return ErrAlreadyReturned
		}
		p, err := tx.LockProfile(ctx, r.UserID)
		if err != nil {
			return err
		}

		fine := Fine(r.DueDate, today, s.policy.FinePerDay)
		r.Status = LoanLost
		r.FineAmount = fine
		r.FinePaid = false
		if notes != "" {
			r.Notes = notes
		}
		r.UpdatedAt = now
		if err := tx.UpdateBorrow(ctx, r); err != nil {
			return err
		}
		if fine.IsPositive() {
			p.AddFine(fine)
			p.UpdatedAt = now
			if err := tx.UpdateProfile(ctx, p); err != nil {
				return err
			}
		}

		entry, err := audit.NewEntry(r.UserID, audit.ActionLost, "BorrowRecord", r.ID, "Marked book as lost",
			BookLost{RecordID: r.ID, UserID: r.UserID, BookID: r.BookID, Fine: fine}, now)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mark borrow record %s lost: %w", recordID, err)
	}

	s.logger.Info("book marked lost",
		zap.String("borrow_id", record.ID.String()),
		zap.String("user_id", record.UserID.String()),
		zap.String("fine", record.FineAmount.StringFixed(2)),
	)
	if record.FineAmount.IsPositive() {
		title := ""
		if b, err := s.store.GetBook(ctx, record.BookID); err == nil {
			title = b.Title
		}
		s.emitFineDue(ctx, record, title)
	}
	return record, nil
}

// PayFine settles the fine on a closed record owned by userID.
func (s *service) PayFine(ctx context.Context, userID, recordID uuid.UUID) (*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.pay_fine",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("borrow.id", recordID.String()),
		),
	)
	defer span.End()

	now, _ := s.clock()
	var (
		record *BorrowRecord
		amount decimal.Decimal
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockBorrow(ctx, recordID)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return fmt.Errorf("borrow record %s: %w", recordID, errs.ErrNotFound)
		}
		amount = r.UnpaidFine()
		if r.IsOpen() || !amount.IsPositive() {
			return ErrNoFineDue
		}
		p, err := tx.LockProfile(ctx, r.UserID)
		if err != nil {
			return err
		}

		r.FinePaid = true
		r.UpdatedAt = now
		if err := tx.UpdateBorrow(ctx, r); err != nil {
			return err
		}
		p.SettleFine(amount)
		p.UpdatedAt = now
		if err := tx.UpdateProfile(ctx, p); err != nil {
			return err
		}

		entry, err := audit.NewEntry(userID, audit.ActionPay, "BorrowRecord", r.ID,
			fmt.Sprintf("Paid fine of %s", amount.StringFixed(2)),
			FineSettled{RecordID: r.ID, UserID: userID, Amount: amount}, now)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pay fine on borrow record %s: %w", recordID, err)
	}

	s.logger.Info("fine paid",
		zap.String("borrow_id", record.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	s.emit(ctx, notification.Notice{
		UserID:  userID,
		Type:    notification.TypeFine,
		Title:   "Fine Paid",
		Message: fmt.Sprintf("Your payment of $%s has been received.", amount.StringFixed(2)),
		Link:    "/me/profile",
		Ref:     record.ID,
		Email: &notification.Email{
			Template: notification.TemplateFine,
			Data:     map[string]any{"Amount": amount.StringFixed(2), "Status": "paid"},
		},
	})
	return record, nil
}

func (s *service) emitFineDue(ctx context.Context, r *BorrowRecord, title string) {
	amount := r.FineAmount.StringFixed(2)
	s.emit(ctx, notification.Notice{
		UserID:  r.UserID,
		Type:    notification.TypeFine,
		Title:   "Fine Payment Due",
		Message: fmt.Sprintf("You have an outstanding fine of $%s for %q. Please pay to continue borrowing.", amount, title),
		Link:    "/me/profile",
		Ref:     r.ID,
		Email: &notification.Email{
			Template: notification.TemplateFine,
			Data:     map[string]any{"Amount": amount, "Status": "due"},
		},
	})
}

// emit hands n to the sink and reports whether it was accepted. Failures
// are logged and never reach the caller.
func (s *service) emit(ctx context.Context, n notification.Notice) bool {
	err := s.sink.Notify(ctx, n)
	if err == nil {
		return true
	}
	if errors.Is(err, notification.ErrSuppressed) {
		return false
	}
	s.metrics.notifyErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(n.Type))))
	s.logger.Warn("failed to emit notification",
		zap.String("user_id", n.UserID.String()),
		zap.String("type", string(n.Type)),
		zap.Error(err),
	)
	return false
}
