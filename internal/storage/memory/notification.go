// internal/storage/memory/notification.go
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"librarium/internal/audit"
	"librarium/internal/notification"
)

func (s *Store) InsertNotification(_ context.Context, n *notification.Notification) error {
	return s.update(func(st *state) error {
		st.notifications[n.ID] = *n
		return nil
	})
}

func (s *Store) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	out := []*notification.Notification{}
	err := s.view(func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID != userID || (unreadOnly && n.Read) {
				continue
			}
			n := n
			out = append(out, &n)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *Store) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	err := s.view(func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID && !n.Read {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (s *Store) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	return s.update(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return notFound("notification", id)
		}
		n.Read = true
		st.notifications[id] = n
		return nil
	})
}

func (s *Store) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	err := s.update(func(st *state) error {
		for id, n := range st.notifications {
			if n.UserID == userID && !n.Read {
				n.Read = true
				st.notifications[id] = n
				count++
			}
		}
		return nil
	})
	return count, err
}

func (s *Store) HasNotificationSince(_ context.Context, userID uuid.UUID, t notification.Type, ref uuid.UUID, since time.Time) (bool, error) {
	found := false
	err := s.view(func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID != userID || n.Type != t || n.CreatedAt.Before(since) {
				continue
			}
			if ref == uuid.Nil && !n.Ref.Valid || n.Ref.Valid && n.Ref.UUID == ref {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *Store) Recipient(_ context.Context, userID uuid.UUID) (notification.Recipient, error) {
	var out notification.Recipient
	err := s.view(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return notFound("profile", userID)
		}
		out = notification.Recipient{Email: p.Email, Name: p.Name}
		return nil
	})
	return out, err
}

func (s *Store) ListEntries(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
	out := []*audit.Entry{}
	err := s.view(func(st *state) error {
		for _, e := range st.audit {
			if e.ID <= f.AfterID {
				continue
			}
			if f.UserID != uuid.Nil && e.UserID != f.UserID {
				continue
			}
			if f.Entity != "" && e.Entity != f.Entity {
				continue
			}
			if f.EntityID != uuid.Nil && e.EntityID != f.EntityID {
				continue
			}
			if f.Action != "" && e.Action != f.Action {
				continue
			}
			e := e
			out = append(out, &e)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}
