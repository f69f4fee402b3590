// internal/notification/service_test.go
package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"librarium/internal/errs"
	"librarium/internal/membership"
	"librarium/internal/notification"
	"librarium/internal/storage/memory"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var now = time.Date(2024, 4, 2, 15, 30, 0, 0, time.UTC)

func setup(t *testing.T, opts ...notification.Option) (notification.Service, *fakeMailer, uuid.UUID) {
	t.Helper()
	store := memory.New()
	userID := uuid.New()
	require.NoError(t, store.InsertProfile(context.Background(), &membership.Profile{
		UserID: userID, Email: "ada@example.com", Name: "Ada", Tier: membership.TierBasic,
		MaxBooksAllowed: 5, TotalFines: decimal.Zero, Active: true, MemberSince: now, UpdatedAt: now,
	}))

	mailer := &fakeMailer{}
	opts = append([]notification.Option{
		notification.WithClock(func() time.Time { return now }),
		notification.WithEmailRate(0),
	}, opts...)
	return notification.NewService(store, mailer, zaptest.NewLogger(t), opts...), mailer, userID
}

func TestNotifyStoresAndLists(t *testing.T) {
	svc, _, userID := setup(t)
	ctx := context.Background()

	for _, title := range []string{"First", "Second"} {
		require.NoError(t, svc.Notify(ctx, notification.Notice{
			UserID: userID, Type: notification.TypeGeneral, Title: title, Message: "Hello",
		}))
	}

	list, err := svc.List(ctx, userID, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	unread, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	require.NoError(t, svc.MarkRead(ctx, userID, list[0].ID))
	unread, err = svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	assert.ErrorIs(t, svc.MarkRead(ctx, uuid.New(), list[1].ID), errs.ErrNotFound)

	n, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unreadOnly, err := svc.List(ctx, userID, true, 10)
	require.NoError(t, err)
	assert.Empty(t, unreadOnly)
}

func TestNotifyRejectsUnknownType(t *testing.T) {
	svc, _, userID := setup(t)
	err := svc.Notify(context.Background(), notification.Notice{UserID: userID, Type: "PIGEON"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestDedupeSuppressesRepeatsPerRef(t *testing.T) {
	svc, _, userID := setup(t)
	ctx := context.Background()
	ref := uuid.New()

	notice := notification.Notice{
		UserID: userID, Type: notification.TypeOverdue, Title: "Overdue", Message: "Please return",
		Ref: ref, Dedupe: true,
	}
	require.NoError(t, svc.Notify(ctx, notice))
	assert.ErrorIs(t, svc.Notify(ctx, notice), notification.ErrSuppressed)

	notice.Ref = uuid.New()
	require.NoError(t, svc.Notify(ctx, notice), "another loan is a separate notice")

	list, err := svc.List(ctx, userID, false, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDedupeDayFollowsLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	at := time.Date(2024, 4, 1, 20, 0, 0, 0, time.UTC) // 05:00 on Apr 2 in Tokyo
	svc, _, userID := setup(t,
		notification.WithLocation(tokyo),
		notification.WithClock(func() time.Time { return at }),
	)
	ctx := context.Background()
	notice := notification.Notice{
		UserID: userID, Type: notification.TypeDueSoon, Title: "Due soon", Message: "Dune is due",
		Ref: uuid.New(), Dedupe: true,
	}

	require.NoError(t, svc.Notify(ctx, notice))

	at = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) // 19:00 on Apr 2 in Tokyo
	assert.ErrorIs(t, svc.Notify(ctx, notice), notification.ErrSuppressed)

	at = time.Date(2024, 4, 2, 16, 0, 0, 0, time.UTC) // 01:00 on Apr 3 in Tokyo
	require.NoError(t, svc.Notify(ctx, notice))
}

func TestEmailIsDeliveredByRun(t *testing.T) {
	svc, mailer, userID := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.NoError(t, svc.Notify(context.Background(), notification.Notice{
		UserID: userID, Type: notification.TypeDueSoon, Title: "Due soon", Message: "Dune is due",
		Email: &notification.Email{
			Template: notification.TemplateDueSoon,
			Data:     map[string]any{"BookTitle": "Dune", "DueDate": "2024-04-05"},
		},
	}))

	require.Eventually(t, func() bool { return mailer.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	assert.Equal(t, "ada@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "Dune")
	assert.Contains(t, mailer.sent[0].Body, "Ada")
}

func TestRunFlushesQueueOnShutdown(t *testing.T) {
	svc, mailer, userID := setup(t)
	mailer.err = errors.New("smtp down")

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Notify(context.Background(), notification.Notice{
			UserID: userID, Type: notification.TypeGeneral, Title: "Welcome", Message: "Hi",
			Email: &notification.Email{Template: notification.TemplateWelcome, Data: map[string]any{"MaxBooks": 5}},
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, 3, mailer.count(), "failed sends are logged, not retried")
}

func TestFullOutboxDropsEmailButKeepsNotification(t *testing.T) {
	svc, mailer, userID := setup(t, notification.WithOutboxSize(1))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Notify(ctx, notification.Notice{
			UserID: userID, Type: notification.TypeGeneral, Title: "Welcome", Message: "Hi",
			Email: &notification.Email{Template: notification.TemplateWelcome, Data: map[string]any{"MaxBooks": 5}},
		}))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, svc.Run(cancelled))
	assert.Equal(t, 1, mailer.count())

	list, err := svc.List(ctx, userID, false, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
