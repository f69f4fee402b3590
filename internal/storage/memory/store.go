// internal/storage/memory/store.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/errs"
	"librarium/internal/membership"
	"librarium/internal/notification"
	"librarium/internal/review"
)

// state is the whole data set. Maps hold values so a clone is a snapshot.
type state struct {
	books         map[uuid.UUID]catalog.Book
	profiles      map[uuid.UUID]membership.Profile
	borrows       map[uuid.UUID]circulation.BorrowRecord
	reservations  map[uuid.UUID]circulation.Reservation
	reviews       map[uuid.UUID]review.Review
	wishlist      map[uuid.UUID]review.WishlistItem
	notifications map[uuid.UUID]notification.Notification
	audit         []audit.Entry
	auditSeq      int64
}

func newState() *state {
	return &state{
		books:         make(map[uuid.UUID]catalog.Book),
		profiles:      make(map[uuid.UUID]membership.Profile),
		borrows:       make(map[uuid.UUID]circulation.BorrowRecord),
		reservations:  make(map[uuid.UUID]circulation.Reservation),
		reviews:       make(map[uuid.UUID]review.Review),
		wishlist:      make(map[uuid.UUID]review.WishlistItem),
		notifications: make(map[uuid.UUID]notification.Notification),
	}
}

func (s *state) clone() *state {
	c := &state{
		books:         cloneMap(s.books),
		profiles:      cloneMap(s.profiles),
		borrows:       cloneMap(s.borrows),
		reservations:  cloneMap(s.reservations),
		reviews:       cloneMap(s.reviews),
		wishlist:      cloneMap(s.wishlist),
		notifications: cloneMap(s.notifications),
		audit:         make([]audit.Entry, len(s.audit)),
		auditSeq:      s.auditSeq,
	}
	copy(c.audit, s.audit)
	return c
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	c := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Store keeps every table in process memory behind one mutex.
// Transactions run on a snapshot that replaces the live state on commit,
// so they are serialisable.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// update runs fn on a snapshot and keeps it only when fn succeeds.
func (s *Store) update(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

// view runs fn against the live state without copying it.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Lending returns the store as seen by the circulation service.
func (s *Store) Lending() circulation.Store {
	return &lendingStore{Store: s}
}

// Reviews returns the store as seen by the review service.
func (s *Store) Reviews() review.Store {
	return &reviewStore{Store: s}
}

type lendingStore struct {
	*Store
}

func (l *lendingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx circulation.Tx) error) error {
	return l.update(func(st *state) error {
		return fn(ctx, &tx{st: st})
	})
}

type reviewStore struct {
	*Store
}

func (r *reviewStore) InTx(ctx context.Context, fn func(ctx context.Context, tx review.Tx) error) error {
	return r.update(func(st *state) error {
		return fn(ctx, &tx{st: st})
	})
}

// tx serves both the lending and the review transaction contracts.
type tx struct {
	st *state
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", kind, id, errs.ErrNotFound)
}

func (t *tx) LockBook(_ context.Context, id uuid.UUID) (*catalog.Book, error) {
	b, ok := t.st.books[id]
	if !ok {
		return nil, notFound("book", id)
	}
	return &b, nil
}

func (t *tx) UpdateBook(_ context.Context, b *catalog.Book) error {
	if _, ok := t.st.books[b.ID]; !ok {
		return notFound("book", b.ID)
	}
	t.st.books[b.ID] = *b
	return nil
}

func (t *tx) LockProfile(_ context.Context, userID uuid.UUID) (*membership.Profile, error) {
	p, ok := t.st.profiles[userID]
	if !ok {
		return nil, notFound("profile", userID)
	}
	return &p, nil
}

func (t *tx) UpdateProfile(_ context.Context, p *membership.Profile) error {
	if _, ok := t.st.profiles[p.UserID]; !ok {
		return notFound("profile", p.UserID)
	}
	t.st.profiles[p.UserID] = *p
	return nil
}

func (t *tx) AppendAudit(_ context.Context, e *audit.Entry) error {
	t.st.auditSeq++
	e.ID = t.st.auditSeq
	t.st.audit = append(t.st.audit, *e)
	return nil
}
