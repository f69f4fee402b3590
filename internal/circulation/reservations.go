// internal/circulation/reservations.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/errs"
	"librarium/internal/notification"
)

// Reserve places a hold on a book for userID.
func (s *service) Reserve(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.reserve",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	now, _ := s.clock()
	res := &Reservation{
		ID:         uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		ReservedAt: now,
		ExpiresAt:  now.AddDate(0, 0, s.policy.ReservationDays),
		Status:     ReservationActive,
		UpdatedAt:  now,
	}

	var book *catalog.Book
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}

		existing, err := tx.FindActiveReservation(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.IsExpired(now) {
				return ErrDuplicateReservation
			}
			existing.Status = ReservationExpired
			existing.UpdatedAt = now
			if err := tx.UpdateReservation(ctx, existing); err != nil {
				return err
			}
		}

		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}
		entry, err := audit.NewEntry(userID, audit.ActionReserve, "Book", bookID,
			fmt.Sprintf("Reserved book: %s", b.Title),
			ReservationChanged{ReservationID: res.ID, UserID: userID, BookID: bookID, Status: res.Status, ExpiresAt: res.ExpiresAt}, now)
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
		if !errors.Is(err, ErrDuplicateReservation) {
			span.RecordError(err)
		}
		return nil, fmt.Errorf("reserve book %s: %w", bookID, err)
	}

	s.metrics.reservations.Add(ctx, 1)
	s.logger.Info("book reserved",
		zap.String("reservation_id", res.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("book_id", bookID.String()),
		zap.Time("expires_at", res.ExpiresAt),
	)

	expires := res.ExpiresAt.In(s.loc).Format(time.DateOnly)
	s.emit(ctx, notification.Notice{
		UserID:  userID,
		Type:    notification.TypeReservation,
		Title:   "Reservation Confirmed",
		Message: fmt.Sprintf("Your reservation for %q is confirmed. You will be notified when it is available.", book.Title),
		Link:    "/me/reservations",
		Ref:     res.ID,
		Email: &notification.Email{
			Template: notification.TemplateReservationConfirmed,
			Data:     map[string]any{"BookTitle": book.Title, "ExpiresAt": expires},
		},
	})
	return res, nil
}

// CancelReservation cancels an Active reservation owned by userID.
func (s *service) CancelReservation(ctx context.Context, userID, reservationID uuid.UUID) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.cancel_reservation",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("reservation.id", reservationID.String()),
		),
	)
	defer span.End()

	now, _ := s.clock()
	var res *Reservation
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return fmt.Errorf("reservation %s: %w", reservationID, errs.ErrNotFound)
		}
		if !r.Status.CanTransitionTo(ReservationCancelled) {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidTransition, r.Status)
		}

		r.Status = ReservationCancelled
		r.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		entry, err := audit.NewEntry(userID, audit.ActionCancel, "Reservation", r.ID, "Cancelled reservation",
			ReservationChanged{ReservationID: r.ID, UserID: userID, BookID: r.BookID, Status: r.Status, ExpiresAt: r.ExpiresAt}, now)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel reservation %s: %w", reservationID, err)
	}

	s.logger.Info("reservation cancelled",
		zap.String("reservation_id", res.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return res, nil
}

// Reservations lists the reservations of userID, newest first, expiring
// stale ones before reading.
func (s *service) Reservations(ctx context.Context, userID uuid.UUID) ([]*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.reservations",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer span.End()

	now, _ := s.clock()
	n, err := s.store.ExpireReservations(ctx, userID, now)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("expire reservations of %s: %w", userID, err)
	}
	if n > 0 {
		s.metrics.expired.Add(ctx, int64(n))
	}

	list, err := s.store.ListReservations(ctx, ReservationQuery{UserID: userID})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list reservations of %s: %w", userID, err)
	}
	return list, nil
}

// ExpireReservations moves every Active reservation whose expiry has
// passed to Expired.
func (s *service) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.expire_reservations")
	defer span.End()

	n, err := s.store.ExpireReservations(ctx, uuid.Nil, now.UTC())
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("expire reservations: %w", err)
	}

	span.SetAttributes(attribute.Int("reservations.expired", n))
	s.metrics.expired.Add(ctx, int64(n))
	s.logger.Info("reservation expiry sweep finished", zap.Int("expired", n))
	return n, nil
}
