// internal/storage/postgres/notification.go
package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"librarium/internal/audit"
	"librarium/internal/notification"
)

const notificationColumns = `id, user_id, type, title, message, link, ref, read, created_at`

func (s *Store) InsertNotification(ctx context.Context, n *notification.Notification) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :user_id, :type, :title, :message, :link, :ref, :read, :created_at)
	`, n)
	return mapError(err, "notification", n.ID)
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	ds := builder().From("notifications").Prepared(true).
		Select(goqu.L(notificationColumns)).
		Where(goqu.Ex{"user_id": userID}).
		Order(goqu.I("created_at").Desc(), goqu.I("id").Asc())
	if unreadOnly {
		ds = ds.Where(goqu.Ex{"read": false})
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	list := []*notification.Notification{}
	if err := s.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, mapError(err, "notifications", userID)
	}
	return list, nil
}

func (s *Store) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, mapError(err, "unread notifications", userID)
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError(err, "notification", id)
	}
	return expectOne(res, "notification", id)
}

func (s *Store) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, mapError(err, "notifications", userID)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) HasNotificationSince(ctx context.Context, userID uuid.UUID, t notification.Type, ref uuid.UUID, since time.Time) (bool, error) {
	ds := builder().From("notifications").Prepared(true).
		Select(goqu.L("1")).
		Where(
			goqu.Ex{"user_id": userID, "type": string(t)},
			goqu.C("created_at").Gte(since),
		).
		Limit(1)
	if ref == uuid.Nil {
		ds = ds.Where(goqu.C("ref").IsNull())
	} else {
		ds = ds.Where(goqu.Ex{"ref": ref})
	}
	query, args, err := build(ds)
	if err != nil {
		return false, err
	}
	var hits []int
	if err := s.db.SelectContext(ctx, &hits, query, args...); err != nil {
		return false, mapError(err, "notifications", userID)
	}
	return len(hits) > 0, nil
}

func (s *Store) Recipient(ctx context.Context, userID uuid.UUID) (notification.Recipient, error) {
	var r notification.Recipient
	err := s.db.GetContext(ctx, &r, `SELECT email, name FROM member_profiles WHERE user_id = $1`, userID)
	if err != nil {
		return r, mapError(err, "profile", userID)
	}
	return r, nil
}

// ListEntries pages through the audit log by id, oldest first.
func (s *Store) ListEntries(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.audit.list")
	defer span.End()

	ds := builder().From("audit_log").Prepared(true).
		Select("id", "user_id", "action", "entity", "entity_id", "description", "data", "created_at").
		Where(goqu.C("id").Gt(f.AfterID)).
		Order(goqu.I("id").Asc())
	if f.UserID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"user_id": f.UserID})
	}
	if f.Entity != "" {
		ds = ds.Where(goqu.Ex{"entity": f.Entity})
	}
	if f.EntityID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"entity_id": f.EntityID})
	}
	if f.Action != "" {
		ds = ds.Where(goqu.Ex{"action": string(f.Action)})
	}
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}

	query, args, err := build(ds)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	entries := []*audit.Entry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		span.RecordError(err)
		return nil, mapError(err, "audit log", f.EntityID)
	}
	return entries, nil
}
