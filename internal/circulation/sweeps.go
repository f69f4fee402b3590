// internal/circulation/sweeps.go
package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librarium/internal/notification"
)

// MarkOverdue moves every Borrowed record due before today to Overdue.
func (s *service) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	day := Day(today, s.loc)
	ctx, span := s.tracer.Start(ctx, "circulation.mark_overdue",
		trace.WithAttributes(attribute.String("today", day.Format(time.DateOnly))),
	)
	defer span.End()

	n, err := s.store.MarkOverdue(ctx, day, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("mark overdue: %w", err)
	}

	span.SetAttributes(attribute.Int("records.marked", n))
	s.metrics.overdueMarked.Add(ctx, int64(n))
	s.logger.Info("overdue sweep finished",
		zap.String("today", day.Format(time.DateOnly)),
		zap.Int("marked", n),
	)
	return n, nil
}

// refreshOverdue moves Borrowed records due before day to Overdue so a read
// never shows a past-due loan as Borrowed.
func (s *service) refreshOverdue(ctx context.Context, day time.Time) error {
	n, err := s.store.MarkOverdue(ctx, day, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark overdue: %w", err)
	}
	if n > 0 {
		s.metrics.overdueMarked.Add(ctx, int64(n))
	}
	return nil
}

// SendDueReminders sends a DUE_SOON notice for every Borrowed record due
// the day after today.
func (s *service) SendDueReminders(ctx context.Context, today time.Time) (int, error) {
	tomorrow := Day(today, s.loc).AddDate(0, 0, 1)
	ctx, span := s.tracer.Start(ctx, "circulation.send_due_reminders",
		trace.WithAttributes(attribute.String("due_on", tomorrow.Format(time.DateOnly))),
	)
	defer span.End()

	records, err := s.store.ListBorrows(ctx, BorrowQuery{Statuses: []LoanStatus{LoanBorrowed}, DueOn: tomorrow})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list records due %s: %w", tomorrow.Format(time.DateOnly), err)
	}

	titles := s.titleCache()
	sent := 0
	for _, r := range records {
		title := titles(ctx, r.BookID)
		due := r.DueDate.UTC().Format(time.DateOnly)
		if s.emit(ctx, notification.Notice{
			UserID:  r.UserID,
			Type:    notification.TypeDueSoon,
			Title:   "Book Due Soon",
			Message: fmt.Sprintf("%q is due on %s. Please return it on time.", title, due),
			Link:    "/me/borrows",
			Ref:     r.ID,
			Dedupe:  true,
			Email: &notification.Email{
				Template: notification.TemplateDueSoon,
				Data:     map[string]any{"BookTitle": title, "DueDate": due},
			},
		}) {
			sent++
		}
	}

	span.SetAttributes(attribute.Int("reminders.sent", sent))
	s.logger.Info("due reminders sent", zap.Int("due", len(records)), zap.Int("sent", sent))
	return sent, nil
}

// SendOverdueNotices sends an OVERDUE notice with the current fine for
// every Overdue record, at most once per record per day.
func (s *service) SendOverdueNotices(ctx context.Context, today time.Time) (int, error) {
	day := Day(today, s.loc)
	ctx, span := s.tracer.Start(ctx, "circulation.send_overdue_notices")
	defer span.End()

	if err := s.refreshOverdue(ctx, day); err != nil {
		span.RecordError(err)
		return 0, err
	}
	records, err := s.store.ListBorrows(ctx, BorrowQuery{Statuses: []LoanStatus{LoanOverdue}})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list overdue records: %w", err)
	}

	titles := s.titleCache()
	sent := 0
	for _, r := range records {
		title := titles(ctx, r.BookID)
		fine := Fine(r.DueDate, day, s.policy.FinePerDay).StringFixed(2)
		due := r.DueDate.UTC().Format(time.DateOnly)
		if s.emit(ctx, notification.Notice{
			UserID:  r.UserID,
			Type:    notification.TypeOverdue,
			Title:   "Book Overdue",
			Message: fmt.Sprintf("%q is overdue. Fine: $%s. Please return immediately.", title, fine),
			Link:    "/me/borrows",
			Ref:     r.ID,
			Dedupe:  true,
			Email: &notification.Email{
				Template: notification.TemplateOverdue,
				Data:     map[string]any{"BookTitle": title, "DueDate": due, "Fine": fine},
			},
		}) {
			sent++
		}
	}

	span.SetAttributes(attribute.Int("notices.sent", sent))
	s.logger.Info("overdue notices sent", zap.Int("overdue", len(records)), zap.Int("sent", sent))
	return sent, nil
}

// titleCache returns a lookup of book titles that hits the store once per book.
func (s *service) titleCache() func(context.Context, uuid.UUID) string {
	titles := make(map[uuid.UUID]string)
	return func(ctx context.Context, id uuid.UUID) string {
		if t, ok := titles[id]; ok {
			return t
		}
		t := "your book"
		if b, err := s.store.GetBook(ctx, id); err == nil {
			t = b.Title
		} else {
			s.logger.Warn("failed to load book title", zap.String("book_id", id.String()), zap.Error(err))
		}
		titles[id] = t
		return t
	}
}

// OpenBorrows lists the Borrowed and Overdue records of userID with the
// fine each has accrued so far. Past-due loans are marked Overdue first.
func (s *service) OpenBorrows(ctx context.Context, userID uuid.UUID) ([]*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.open_borrows",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer span.End()

	_, today := s.clock()
	if err := s.refreshOverdue(ctx, today); err != nil {
		span.RecordError(err)
		return nil, err
	}
	records, err := s.store.ListBorrows(ctx, BorrowQuery{UserID: userID, Statuses: OpenStatuses})
	if err != nil {
		return nil, fmt.Errorf("list open borrows of %s: %w", userID, err)
	}
	s.withAccruedFines(records)
	return records, nil
}

// History lists every record of userID, newest first.
func (s *service) History(ctx context.Context, userID uuid.UUID) ([]*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.history",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer span.End()

	_, today := s.clock()
	if err := s.refreshOverdue(ctx, today); err != nil {
		span.RecordError(err)
		return nil, err
	}
	records, err := s.store.ListBorrows(ctx, BorrowQuery{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list borrow history of %s: %w", userID, err)
	}
	s.withAccruedFines(records)
	return records, nil
}

// OverdueBorrows lists every Overdue record in the library, marking
// past-due loans first.
func (s *service) OverdueBorrows(ctx context.Context) ([]*BorrowRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.overdue_borrows")
	defer span.End()

	_, today := s.clock()
	if err := s.refreshOverdue(ctx, today); err != nil {
		span.RecordError(err)
		return nil, err
	}
	records, err := s.store.ListBorrows(ctx, BorrowQuery{Statuses: []LoanStatus{LoanOverdue}})
	if err != nil {
		return nil, fmt.Errorf("list overdue borrows: %w", err)
	}
	s.withAccruedFines(records)
	return records, nil
}

func (s *service) withAccruedFines(records []*BorrowRecord) {
	_, today := s.clock()
	for _, r := range records {
		if r.IsOpen() {
			r.AccruedFine = Fine(r.DueDate, today, s.policy.FinePerDay)
		} else {
			r.AccruedFine = r.FineAmount
		}
	}
}
