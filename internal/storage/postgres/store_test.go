// internal/storage/postgres/store_test.go
package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/errs"
	"librarium/internal/membership"
	"librarium/internal/notification"
	"librarium/internal/review"
)

// setupTestStore connects to a PostgreSQL database for testing.
// It skips the test if the connection cannot be established.
func setupTestStore(t testing.TB) *Store {
	t.Helper()

	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env("PGHOST", "localhost"), env("PGPORT", "5432"), env("PGUSER", "user"),
		env("PGPASSWORD", "password"), env("PGDATABASE", "testdb"))

	db, err := sqlx.Open("postgres", connStr)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		t.Skipf("skipping postgres tests: could not connect to postgres: %v", err)
	}

	s := New(db)
	require.NoError(t, s.Migrate(context.Background()))
	_, err = db.Exec(`TRUNCATE audit_log, notifications, wishlist_items, reviews, reservations, borrow_records, member_profiles, books`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return s
}

var now = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, copies int) (*catalog.Book, *membership.Profile) {
	t.Helper()
	ctx := context.Background()

	b := &catalog.Book{
		ID: uuid.New(), Title: "Dune", Author: "Frank Herbert", Category: catalog.CategoryFiction,
		Language: "English", Status: catalog.StatusAvailable, CopiesAvailable: copies, TotalCopies: copies,
		Rating: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertBook(ctx, b))

	p := &membership.Profile{
		UserID: uuid.New(), Email: "reader@example.com", Name: "Reader", Tier: membership.TierBasic,
		MaxBooksAllowed: 5, TotalFines: decimal.Zero, Active: true, MemberSince: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertProfile(ctx, p))
	return b, p
}

func TestStore_DuplicateOpenBorrowIsRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b, p := seed(t, s, 2)

	insert := func() error {
		return s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
			return tx.InsertBorrow(ctx, &circulation.BorrowRecord{
				ID: uuid.New(), UserID: p.UserID, BookID: b.ID, BorrowedAt: now,
				DueDate: circulation.Day(now, time.UTC).AddDate(0, 0, 14), Status: circulation.LoanBorrowed,
				FineAmount: decimal.Zero, UpdatedAt: now,
			})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), circulation.ErrDuplicateBorrow)

	open, err := s.ListBorrows(ctx, circulation.BorrowQuery{UserID: p.UserID, Statuses: circulation.OpenStatuses})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestStore_MarkOverdueOnlyTouchesPastDue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b, p := seed(t, s, 2)
	today := circulation.Day(now, time.UTC)

	err := s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
		return tx.InsertBorrow(ctx, &circulation.BorrowRecord{
			ID: uuid.New(), UserID: p.UserID, BookID: b.ID, BorrowedAt: now.AddDate(0, 0, -20),
			DueDate: today.AddDate(0, 0, -1), Status: circulation.LoanBorrowed,
			FineAmount: decimal.Zero, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	n, err := s.MarkOverdue(ctx, today, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.MarkOverdue(ctx, today, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_NextQueuedReservationSkipsLockedRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b, first := seed(t, s, 1)

	second := &membership.Profile{
		UserID: uuid.New(), Email: "second@example.com", Name: "Second", Tier: membership.TierBasic,
		MaxBooksAllowed: 5, TotalFines: decimal.Zero, Active: true, MemberSince: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertProfile(ctx, second))

	for i, userID := range []uuid.UUID{first.UserID, second.UserID} {
		at := now.Add(time.Duration(i) * time.Minute)
		err := s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
			return tx.InsertReservation(ctx, &circulation.Reservation{
				ID: uuid.New(), UserID: userID, BookID: b.ID, ReservedAt: at,
				ExpiresAt: at.AddDate(0, 0, 7), Status: circulation.ReservationActive, UpdatedAt: at,
			})
		})
		require.NoError(t, err)
	}

	picked := make(chan uuid.UUID, 1)
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
			r, err := tx.NextQueuedReservation(ctx, b.ID, now)
			if err != nil {
				return err
			}
			picked <- r.UserID
			<-release
			return nil
		})
	}()

	assert.Equal(t, first.UserID, <-picked)
	err := s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
		r, err := tx.NextQueuedReservation(ctx, b.ID, now)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, second.UserID, r.UserID)
		return nil
	})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
}

func TestStore_ListBooksFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, 1)

	books, err := s.ListBooks(ctx, catalog.Filter{Query: "herb", OrderBy: "title", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, books, 1)

	books, err = s.ListBooks(ctx, catalog.Filter{Category: catalog.CategoryHistory, OrderBy: "title", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestStore_NotificationDedupeAndRecipient(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, p := seed(t, s, 1)
	ref := uuid.New()

	require.NoError(t, s.InsertNotification(ctx, &notification.Notification{
		ID: uuid.New(), UserID: p.UserID, Type: notification.TypeDueSoon, Title: "Due", Message: "Soon",
		Ref: uuid.NullUUID{UUID: ref, Valid: true}, CreatedAt: now,
	}))

	seen, err := s.HasNotificationSince(ctx, p.UserID, notification.TypeDueSoon, ref, circulation.Day(now, time.UTC))
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.HasNotificationSince(ctx, p.UserID, notification.TypeDueSoon, uuid.New(), circulation.Day(now, time.UTC))
	require.NoError(t, err)
	assert.False(t, seen)

	rcpt, err := s.Recipient(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", rcpt.Email)

	assert.ErrorIs(t, s.MarkRead(ctx, uuid.New(), uuid.New()), errs.ErrNotFound)
}

func TestStore_AuditCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		e, err := audit.NewEntry(userID, audit.ActionCreate, "Book", uuid.New(), "Added book", map[string]int{"n": i}, now)
		require.NoError(t, err)
		require.NoError(t, s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
			return tx.AppendAudit(ctx, e)
		}))
	}

	page, err := s.ListEntries(ctx, audit.Filter{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := s.ListEntries(ctx, audit.Filter{UserID: userID, AfterID: page[1].ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Greater(t, rest[0].ID, page[1].ID)
}

func TestStore_DeleteBook(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	lent, p := seed(t, s, 1)
	done, _ := seed(t, s, 1)

	returned := now.Add(time.Hour)
	err := s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
		if err := tx.InsertBorrow(ctx, &circulation.BorrowRecord{
			ID: uuid.New(), UserID: p.UserID, BookID: lent.ID, BorrowedAt: now,
			DueDate: circulation.Day(now, time.UTC).AddDate(0, 0, 14), Status: circulation.LoanBorrowed,
			FineAmount: decimal.Zero, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertBorrow(ctx, &circulation.BorrowRecord{
			ID: uuid.New(), UserID: p.UserID, BookID: done.ID, BorrowedAt: now,
			DueDate: circulation.Day(now, time.UTC).AddDate(0, 0, 14), ReturnedAt: &returned,
			Status: circulation.LoanReturned, FineAmount: decimal.Zero, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertWishlistItem(ctx, &review.WishlistItem{
		ID: uuid.New(), UserID: p.UserID, BookID: done.ID, Priority: review.PriorityLow, AddedAt: now,
	}))

	assert.ErrorIs(t, s.DeleteBook(ctx, lent.ID), catalog.ErrBookInUse)

	require.NoError(t, s.DeleteBook(ctx, done.ID))
	_, err = s.GetBook(ctx, done.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	history, err := s.ListBorrows(ctx, circulation.BorrowQuery{UserID: p.UserID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, lent.ID, history[0].BookID)

	assert.ErrorIs(t, s.DeleteBook(ctx, done.ID), errs.ErrNotFound)
}
