// internal/storage/memory/store_test.go
package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/errs"
)

var now = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func book(copies int) *catalog.Book {
	return &catalog.Book{
		ID: uuid.New(), Title: "Dune", Author: "Frank Herbert", Category: catalog.CategoryFiction,
		Status: catalog.StatusAvailable, CopiesAvailable: copies, TotalCopies: copies,
		Rating: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := book(1)
	require.NoError(t, s.InsertBook(ctx, b))

	boom := errors.New("boom")
	err := s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
		locked, err := tx.LockBook(ctx, b.ID)
		require.NoError(t, err)
		require.NoError(t, locked.CheckOut())
		require.NoError(t, tx.UpdateBook(ctx, locked))
		e, err := audit.NewEntry(uuid.New(), audit.ActionBorrow, "BorrowRecord", uuid.New(), "Borrowed book", nil, now)
		require.NoError(t, err)
		require.NoError(t, tx.AppendAudit(ctx, e))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CopiesAvailable)

	entries, err := s.ListEntries(ctx, audit.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := book(2)
	require.NoError(t, s.InsertBook(ctx, b))

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	got.CopiesAvailable = 0

	again, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.CopiesAvailable)
}

func TestModifyBookRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := book(2)
	require.NoError(t, s.InsertBook(ctx, b))

	_, err := s.ModifyBook(ctx, b.ID, func(b *catalog.Book) error {
		b.Title = "Changed"
		return errs.ErrInvalidInput
	})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)

	_, err = s.ModifyBook(ctx, uuid.New(), func(*catalog.Book) error { return nil })
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListBooksOrderAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, title := range []string{"Emma", "Beloved", "Carrie"} {
		b := book(1)
		b.Title = title
		require.NoError(t, s.InsertBook(ctx, b))
	}

	books, err := s.ListBooks(ctx, catalog.Filter{OrderBy: "title", Limit: 2})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Beloved", books[0].Title)
	assert.Equal(t, "Carrie", books[1].Title)

	books, err = s.ListBooks(ctx, catalog.Filter{OrderBy: "-title", Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Beloved", books[0].Title)

	books, err = s.ListBooks(ctx, catalog.Filter{OrderBy: "title", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestAuditCursor(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		actor := userID
		if i%2 == 1 {
			actor = uuid.New()
		}
		e, err := audit.NewEntry(actor, audit.ActionCreate, "Book", uuid.New(), "Added book", nil, now)
		require.NoError(t, err)
		require.NoError(t, s.Lending().InTx(ctx, func(ctx context.Context, tx circulation.Tx) error {
			return tx.AppendAudit(ctx, e)
		}))
	}

	mine, err := s.ListEntries(ctx, audit.Filter{UserID: userID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 3)

	page, err := s.ListEntries(ctx, audit.Filter{AfterID: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].ID)
	assert.Equal(t, int64(4), page[1].ID)
}
