// internal/audit/service_test.go
package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filterStore struct {
	got Filter
	err error
}

func (s *filterStore) ListEntries(_ context.Context, f Filter) ([]*Entry, error) {
	s.got = f
	return []*Entry{}, s.err
}

func TestListClampsLimit(t *testing.T) {
	store := &filterStore{}
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, store.got.Limit)

	_, err = svc.List(ctx, Filter{Limit: 10_000, AfterID: 42})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, store.got.Limit)
	assert.Equal(t, int64(42), store.got.AfterID)
}

func TestListWrapsStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(&filterStore{err: boom})
	_, err := svc.List(context.Background(), Filter{})
	assert.ErrorIs(t, err, boom)
}

func TestNewEntryEncodesPayload(t *testing.T) {
	testTime := time.Date(2024, 1, 10, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	e, err := NewEntry(uuid.New(), ActionPay, "BorrowRecord", uuid.New(), "Paid fine", map[string]string{"amount": "2.50"}, testTime)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"2.50"}`, string(e.Data))
	assert.Equal(t, "UTC", e.CreatedAt.Location().String())

	_, err = NewEntry(uuid.New(), ActionPay, "BorrowRecord", uuid.New(), "Paid fine", make(chan int), testTime)
	assert.Error(t, err)
}
