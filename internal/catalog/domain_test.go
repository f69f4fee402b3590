// internal/catalog/domain_test.go
package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"librarium/internal/errs"
)

func TestCheckOutAndCheckIn(t *testing.T) {
	b := &Book{Status: StatusAvailable, CopiesAvailable: 1, TotalCopies: 2}

	require.NoError(t, b.CheckOut())
	assert.Equal(t, 0, b.CopiesAvailable)
	assert.Equal(t, StatusBorrowed, b.Status)
	assert.ErrorIs(t, b.CheckOut(), ErrNoCopiesAvailable)

	assert.True(t, b.CheckIn())
	assert.Equal(t, StatusAvailable, b.Status)
	assert.True(t, b.CheckIn())
	assert.False(t, b.CheckIn(), "every copy is already on the shelf")
	assert.Equal(t, 2, b.CopiesAvailable)
}

func TestCheckInKeepsMaintenance(t *testing.T) {
	b := &Book{Status: StatusMaintenance, CopiesAvailable: 0, TotalCopies: 1}
	assert.True(t, b.CheckIn())
	assert.Equal(t, StatusMaintenance, b.Status)
	assert.False(t, b.IsAvailable())
}

func TestSetCopies(t *testing.T) {
	b := &Book{Status: StatusAvailable, CopiesAvailable: 3, TotalCopies: 3}

	assert.ErrorIs(t, b.SetCopies(0, 0), errs.ErrInvalidInput)
	assert.ErrorIs(t, b.SetCopies(2, 3), errs.ErrInvalidInput)
	assert.ErrorIs(t, b.SetCopies(2, -1), errs.ErrInvalidInput)

	require.NoError(t, b.SetCopies(4, 0))
	assert.Equal(t, StatusBorrowed, b.Status)
	require.NoError(t, b.SetCopies(4, 2))
	assert.Equal(t, StatusAvailable, b.Status)
}

func TestApplyStatus(t *testing.T) {
	b := &Book{Status: StatusAvailable, CopiesAvailable: 0, TotalCopies: 1}

	assert.ErrorIs(t, b.ApplyStatus(StatusBorrowed), errs.ErrInvalidInput)
	assert.ErrorIs(t, b.ApplyStatus("Shredded"), errs.ErrInvalidInput)

	require.NoError(t, b.ApplyStatus(StatusMaintenance))
	assert.Equal(t, StatusMaintenance, b.Status)

	require.NoError(t, b.ApplyStatus(StatusAvailable))
	assert.Equal(t, StatusBorrowed, b.Status, "no copy is on the shelf")
}

func TestFilterNormalize(t *testing.T) {
	f, err := Filter{Limit: 500, Offset: -3}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, f.OrderBy)
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Zero(t, f.Offset)

	f, err = Filter{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, f.Limit)

	for _, bad := range []Filter{
		{Category: "Poetry"},
		{Status: "Gone"},
		{OrderBy: "isbn; drop table books"},
	} {
		_, err := bad.Normalize()
		assert.ErrorIs(t, err, errs.ErrInvalidInput, "%+v", bad)
	}
}

func TestCopyCountersStayInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 10).Draw(t, "total")
		b := &Book{Status: StatusAvailable, CopiesAvailable: total, TotalCopies: total}

		ops := rapid.SliceOf(rapid.Bool()).Draw(t, "ops")
		for _, out := range ops {
			if out {
				_ = b.CheckOut()
			} else {
				b.CheckIn()
			}
			if b.CopiesAvailable < 0 || b.CopiesAvailable > b.TotalCopies {
				t.Fatalf("copies available %d outside [0, %d]", b.CopiesAvailable, b.TotalCopies)
			}
			if (b.CopiesAvailable == 0) != (b.Status == StatusBorrowed) {
				t.Fatalf("status %s with %d copies available", b.Status, b.CopiesAvailable)
			}
		}
	})
}
