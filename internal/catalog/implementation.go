// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librarium/internal/errs"
	"librarium/internal/logging"
	"librarium/internal/validation"
)

// service implements the Service interface.
type service struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the catalog service.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new catalog service instance.
func NewService(store Store, logger *zap.Logger, opts ...Option) Service {
	s := &service{
		store:  store,
		logger: logging.OrNop(logger).Named("catalog"),
		tracer: otel.Tracer("librarium/catalog"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddBook validates and stores a new catalog entry with every copy on the shelf.
func (s *service) AddBook(ctx context.Context, req NewBook) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_book",
		trace.WithAttributes(attribute.String("book.title", req.Title)),
	)
	defer span.End()

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := checkDetails(req.Category, req.PublishedYear, now); err != nil {
		return nil, err
	}

	book := &Book{
		ID:              uuid.New(),
		ISBN:            strings.TrimSpace(req.ISBN),
		Title:           strings.TrimSpace(req.Title),
		Author:          strings.TrimSpace(req.Author),
		PublishedYear:   req.PublishedYear,
		Category:        req.Category,
		Language:        languageOrDefault(req.Language),
		Publisher:       req.Publisher,
		ShelfLocation:   req.ShelfLocation,
		Description:     req.Description,
		Status:          StatusAvailable,
		CopiesAvailable: req.TotalCopies,
		TotalCopies:     req.TotalCopies,
		Rating:          decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.InsertBook(ctx, book); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	span.SetAttributes(attribute.String("book.id", book.ID.String()))
	s.logger.Info("book added",
		zap.String("book_id", book.ID.String()),
		zap.String("title", book.Title),
		zap.Int("total_copies", book.TotalCopies),
	)
	return book, nil
}

// GetBook retrieves a book from the catalog by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get book %s: %w", id, err)
	}
	return book, nil
}

// ListBooks returns the books matching filter.
func (s *service) ListBooks(ctx context.Context, filter Filter) ([]*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_books")
	defer span.End()

	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	books, err := s.store.ListBooks(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	span.SetAttributes(attribute.Int("books.count", len(books)))
	return books, nil
}

// UpdateCopies updates the number of copies for a book.
func (s *service) UpdateCopies(ctx context.Context, id uuid.UUID, total, available int) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_copies",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
			attribute.Int("copies.total", total),
			attribute.Int("copies.available", available),
		),
	)
	defer span.End()

	book, err := s.store.ModifyBook(ctx, id, func(b *Book) error {
		if err := b.SetCopies(total, available); err != nil {
			return err
		}
		b.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update copies of book %s: %w", id, err)
	}

	s.logger.Info("book copies updated",
		zap.String("book_id", id.String()),
		zap.Int("total_copies", book.TotalCopies),
		zap.Int("copies_available", book.CopiesAvailable),
		zap.String("status", string(book.Status)),
	)
	return book, nil
}

// SetStatus applies a staff-chosen status such as Maintenance.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.set_status",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
			attribute.String("book.status", string(status)),
		),
	)
	defer span.End()

	book, err := s.store.ModifyBook(ctx, id, func(b *Book) error {
		if err := b.ApplyStatus(status); err != nil {
			return err
		}
		b.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set status of book %s: %w", id, err)
	}

	s.logger.Info("book status changed",
		zap.String("book_id", id.String()),
		zap.String("status", string(book.Status)),
	)
	return book, nil
}

// UpdateBook replaces the descriptive fields of a book. Counters, status and
// rating are left as they are.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, req BookEdit) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := checkDetails(req.Category, req.PublishedYear, now); err != nil {
		return nil, err
	}

	book, err := s.store.ModifyBook(ctx, id, func(b *Book) error {
		b.ISBN = strings.TrimSpace(req.ISBN)
		b.Title = strings.TrimSpace(req.Title)
		b.Author = strings.TrimSpace(req.Author)
		b.PublishedYear = req.PublishedYear
		b.Category = req.Category
		b.Language = languageOrDefault(req.Language)
		b.Publisher = req.Publisher
		b.ShelfLocation = req.ShelfLocation
		b.Description = req.Description
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update book %s: %w", id, err)
	}

	s.logger.Info("book updated",
		zap.String("book_id", id.String()),
		zap.String("title", book.Title),
	)
	return book, nil
}

// DeleteBook removes a book that nobody holds or waits for.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	if err := s.store.DeleteBook(ctx, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete book %s: %w", id, err)
	}

	s.logger.Info("book deleted", zap.String("book_id", id.String()))
	return nil
}

func checkDetails(category Category, year int, now time.Time) error {
	if !category.Valid() {
		return fmt.Errorf("%w: unknown category %q", errs.ErrInvalidInput, category)
	}
	if year > now.Year() {
		return fmt.Errorf("%w: published year %d is in the future", errs.ErrInvalidInput, year)
	}
	return nil
}

func languageOrDefault(language string) string {
	if language == "" {
		return "English"
	}
	return language
}
