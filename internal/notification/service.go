// internal/notification/service.go
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sink accepts notices from the lending lifecycle. Callers treat it as
// fire-and-forget: errors are logged, never propagated.
type Sink interface {
	Notify(ctx context.Context, n Notice) error
}

// Service defines the interface for the notification service.
type Service interface {
	Sink
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	// Run delivers queued emails until ctx is done, then flushes what is
	// still queued.
	Run(ctx context.Context) error
}

// Store is the persistence the notification service needs.
type Store interface {
	InsertNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkRead fails with errs.ErrNotFound when id does not belong to userID.
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	HasNotificationSince(ctx context.Context, userID uuid.UUID, t Type, ref uuid.UUID, since time.Time) (bool, error)
	Recipient(ctx context.Context, userID uuid.UUID) (Recipient, error)
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}
