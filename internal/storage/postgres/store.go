// internal/storage/postgres/store.go
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/errs"
	"librarium/internal/membership"
	"librarium/internal/review"
)

//go:embed schema.sql
var schema string

const dialect = "postgres"

// Store persists every table in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("librarium/storage/postgres"),
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
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
	return l.inTx(ctx, "lending", func(ctx context.Context, t *tx) error {
		return fn(ctx, t)
	})
}

type reviewStore struct {
	*Store
}

func (r *reviewStore) InTx(ctx context.Context, fn func(ctx context.Context, tx review.Tx) error) error {
	return r.inTx(ctx, "reviews", func(ctx context.Context, t *tx) error {
		return fn(ctx, t)
	})
}

// inTx runs fn at READ COMMITTED. Correctness comes from the row locks the
// tx methods take, not from the isolation level.
func (s *Store) inTx(ctx context.Context, name string, fn func(ctx context.Context, t *tx) error) error {
	ctx, span := s.tracer.Start(ctx, "postgres.tx",
		trace.WithAttributes(attribute.String("tx.name", name)),
	)
	defer span.End()

	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		span.SetAttributes(attribute.Bool("tx.committed", false))
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

// tx serves both the lending and the review transaction contracts.
type tx struct {
	tx *sqlx.Tx
}

// uniqueViolations maps constraint names from schema.sql to domain errors.
var uniqueViolations = map[string]error{
	"books_isbn_key":               catalog.ErrDuplicateISBN,
	"member_profiles_pkey":         membership.ErrDuplicateProfile,
	"borrow_records_open_key":      circulation.ErrDuplicateBorrow,
	"reservations_active_key":      circulation.ErrDuplicateReservation,
	"reviews_user_book_key":        review.ErrDuplicateReview,
	"wishlist_items_user_book_key": review.ErrDuplicateWishlist,
}

// mapError turns driver errors into domain errors where one applies.
func mapError(err error, kind string, id uuid.UUID) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, errs.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if mapped, ok := uniqueViolations[pqErr.Constraint]; ok {
				return mapped
			}
			return fmt.Errorf("%s: %w", kind, errs.ErrConflict)
		case "23503":
			return fmt.Errorf("%s references a missing row: %w", kind, errs.ErrNotFound)
		case "23514":
			return fmt.Errorf("%w: %s violates %s", errs.ErrInvalidInput, kind, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%s: %w", kind, err)
}

// expectOne reports a missing row when an UPDATE or DELETE touched nothing.
func expectOne(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, errs.ErrNotFound)
	}
	return nil
}

// build renders a goqu dataset as a prepared statement.
func build(ds interface {
	ToSQL() (string, []interface{}, error)
}) (string, []interface{}, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return query, args, nil
}

func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialect)
}

func (t *tx) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if len(e.Data) == 0 {
		e.Data = []byte("{}")
	}
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO audit_log (user_id, action, entity, entity_id, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.UserID, e.Action, e.Entity, e.EntityID, e.Description, []byte(e.Data), e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
