// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, req NewBook) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context, filter Filter) ([]*Book, error)
	UpdateCopies(ctx context.Context, id uuid.UUID, total, available int) (*Book, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, req BookEdit) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
}

// Store is the persistence the catalog service needs.
type Store interface {
	InsertBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	// ModifyBook loads the book under a row lock, applies fn and saves the
	// result. Nothing is written when fn fails.
	ModifyBook(ctx context.Context, id uuid.UUID, fn func(*Book) error) (*Book, error)
	ListBooks(ctx context.Context, filter Filter) ([]*Book, error)
	// DeleteBook removes the book with its closed loans, past reservations,
	// reviews and wishlist entries. It fails with ErrBookInUse while a loan
	// is open or a reservation is Active.
	DeleteBook(ctx context.Context, id uuid.UUID) error
}

// NewBook is the input for AddBook.
type NewBook struct {
	ISBN          string   `json:"isbn" validate:"omitempty,max=13"`
	Title         string   `json:"title" validate:"required,max=200"`
	Author        string   `json:"author" validate:"required,max=100"`
	PublishedYear int      `json:"published_year" validate:"min=1000"`
	Category      Category `json:"category" validate:"required"`
	Language      string   `json:"language" validate:"omitempty,max=50"`
	Publisher     string   `json:"publisher" validate:"omitempty,max=150"`
	ShelfLocation string   `json:"shelf_location" validate:"omitempty,max=50"`
	Description   string   `json:"description"`
	TotalCopies   int      `json:"total_copies" validate:"min=1"`
}

// BookEdit is the input for UpdateBook. Copies and status have their own
// operations.
type BookEdit struct {
	ISBN          string   `json:"isbn" validate:"omitempty,max=13"`
	Title         string   `json:"title" validate:"required,max=200"`
	Author        string   `json:"author" validate:"required,max=100"`
	PublishedYear int      `json:"published_year" validate:"min=1000"`
	Category      Category `json:"category" validate:"required"`
	Language      string   `json:"language" validate:"omitempty,max=50"`
	Publisher     string   `json:"publisher" validate:"omitempty,max=150"`
	ShelfLocation string   `json:"shelf_location" validate:"omitempty,max=50"`
	Description   string   `json:"description"`
}
