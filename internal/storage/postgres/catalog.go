// internal/storage/postgres/catalog.go
package postgres

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/membership"
)

const bookColumns = `id, isbn, title, author, published_year, category, language, publisher,
	shelf_location, description, status, copies_available, total_copies, rating, created_at, updated_at`

const updateBook = `
	UPDATE books SET
		isbn = :isbn, title = :title, author = :author, published_year = :published_year,
		category = :category, language = :language, publisher = :publisher,
		shelf_location = :shelf_location, description = :description, status = :status,
		copies_available = :copies_available, total_copies = :total_copies,
		rating = :rating, updated_at = :updated_at
	WHERE id = :id
`

func (s *Store) InsertBook(ctx context.Context, b *catalog.Book) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (:id, :isbn, :title, :author, :published_year, :category, :language, :publisher,
			:shelf_location, :description, :status, :copies_available, :total_copies, :rating,
			:created_at, :updated_at)
	`, b)
	return mapError(err, "book", b.ID)
}

func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var b catalog.Book
	err := s.db.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, "book", id)
	}
	return &b, nil
}

func (s *Store) ModifyBook(ctx context.Context, id uuid.UUID, fn func(*catalog.Book) error) (*catalog.Book, error) {
	var out *catalog.Book
	err := s.inTx(ctx, "modify_book", func(ctx context.Context, t *tx) error {
		b, err := t.LockBook(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		if err := t.UpdateBook(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, "delete_book", func(ctx context.Context, t *tx) error {
		if _, err := t.LockBook(ctx, id); err != nil {
			return err
		}

		var inUse bool
		err := t.tx.GetContext(ctx, &inUse, `
			SELECT EXISTS (SELECT 1 FROM borrow_records WHERE book_id = $1 AND status IN ($2, $3))
				OR EXISTS (SELECT 1 FROM reservations WHERE book_id = $1 AND status = $4)
		`, id, circulation.LoanBorrowed, circulation.LoanOverdue, circulation.ReservationActive)
		if err != nil {
			return mapError(err, "book", id)
		}
		if inUse {
			return catalog.ErrBookInUse
		}

		for _, table := range []string{"wishlist_items", "reviews", "reservations", "borrow_records"} {
			if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE book_id = $1`, id); err != nil {
				return mapError(err, table, id)
			}
		}
		res, err := t.tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
		if err != nil {
			return mapError(err, "book", id)
		}
		return expectOne(res, "book", id)
	})
}

func (s *Store) ListBooks(ctx context.Context, f catalog.Filter) ([]*catalog.Book, error) {
	ds := builder().From("books").Prepared(true).
		Select(goqu.L(bookColumns))

	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("title").ILike(pattern),
			goqu.I("author").ILike(pattern),
			goqu.I("isbn").ILike(pattern),
			goqu.I("publisher").ILike(pattern),
		))
	}
	if f.Category != "" {
		ds = ds.Where(goqu.Ex{"category": string(f.Category)})
	}
	if f.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(f.Status)})
	}
	if f.AvailableOnly {
		ds = ds.Where(
			goqu.C("copies_available").Gt(0),
			goqu.Ex{"status": string(catalog.StatusAvailable)},
		)
	}

	ds = ds.Order(bookOrder(f.OrderBy), goqu.I("id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}

	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	books := []*catalog.Book{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, mapError(err, "books", uuid.Nil)
	}
	return books, nil
}

func bookOrder(order string) exp.OrderedExpression {
	col := goqu.I(strings.TrimPrefix(order, "-"))
	if strings.HasPrefix(order, "-") {
		return col.Desc()
	}
	return col.Asc()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (t *tx) LockBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var b catalog.Book
	err := t.tx.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapError(err, "book", id)
	}
	return &b, nil
}

func (t *tx) UpdateBook(ctx context.Context, b *catalog.Book) error {
	return namedUpdate(ctx, t.tx, updateBook, b, "book", b.ID)
}

const profileColumns = `user_id, email, name, tier, max_books_allowed, total_fines, active, member_since, updated_at`

const updateProfile = `
	UPDATE member_profiles SET
		email = :email, name = :name, tier = :tier, max_books_allowed = :max_books_allowed,
		total_fines = :total_fines, active = :active, updated_at = :updated_at
	WHERE user_id = :user_id
`

func (s *Store) InsertProfile(ctx context.Context, p *membership.Profile) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO member_profiles (`+profileColumns+`)
		VALUES (:user_id, :email, :name, :tier, :max_books_allowed, :total_fines, :active,
			:member_since, :updated_at)
	`, p)
	return mapError(err, "profile", p.UserID)
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*membership.Profile, error) {
	var p membership.Profile
	err := s.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM member_profiles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, mapError(err, "profile", userID)
	}
	return &p, nil
}

func (s *Store) ModifyProfile(ctx context.Context, userID uuid.UUID, fn func(*membership.Profile) error) (*membership.Profile, error) {
	var out *membership.Profile
	err := s.inTx(ctx, "modify_profile", func(ctx context.Context, t *tx) error {
		p, err := t.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := t.UpdateProfile(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ModifyProfileWithLoans(ctx context.Context, userID uuid.UUID, fn func(*membership.Profile, int) error) (*membership.Profile, error) {
	var out *membership.Profile
	err := s.inTx(ctx, "modify_profile_with_loans", func(ctx context.Context, t *tx) error {
		p, err := t.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		open, err := t.CountOpenBorrows(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(p, open); err != nil {
			return err
		}
		if err := t.UpdateProfile(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tx) LockProfile(ctx context.Context, userID uuid.UUID) (*membership.Profile, error) {
	var p membership.Profile
	err := t.tx.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM member_profiles WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, mapError(err, "profile", userID)
	}
	return &p, nil
}

func (t *tx) UpdateProfile(ctx context.Context, p *membership.Profile) error {
	return namedUpdate(ctx, t.tx, updateProfile, p, "profile", p.UserID)
}

// namedUpdate runs a named UPDATE and requires it to hit exactly one row.
func namedUpdate(ctx context.Context, e sqlx.ExtContext, query string, arg any, kind string, id uuid.UUID) error {
	res, err := sqlx.NamedExecContext(ctx, e, query, arg)
	if err != nil {
		return mapError(err, kind, id)
	}
	return expectOne(res, kind, id)
}
