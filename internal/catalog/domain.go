// internal/catalog/domain.go
package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarium/internal/errs"
)

// Status is the circulation state of a book.
type Status string

const (
	StatusAvailable   Status = "Available"
	StatusBorrowed    Status = "Borrowed"
	StatusReserved    Status = "Reserved"
	StatusMaintenance Status = "Maintenance"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusReserved, StatusMaintenance:
		return true
	}
	return false
}

// Category is the shelf category of a book.
type Category string

const (
	CategoryFiction    Category = "Fiction"
	CategoryNonFiction Category = "Non-Fiction"
	CategoryScience    Category = "Science"
	CategoryTechnology Category = "Technology"
	CategoryHistory    Category = "History"
	CategoryBiography  Category = "Biography"
	CategorySelfHelp   Category = "Self-Help"
	CategoryFantasy    Category = "Fantasy"
	CategoryMystery    Category = "Mystery"
	CategoryRomance    Category = "Romance"
	CategoryBusiness   Category = "Business"
	CategoryPhilosophy Category = "Philosophy"
	CategoryPsychology Category = "Psychology"
	CategoryEducation  Category = "Education"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFiction, CategoryNonFiction, CategoryScience, CategoryTechnology,
	CategoryHistory, CategoryBiography, CategorySelfHelp, CategoryFantasy,
	CategoryMystery, CategoryRomance, CategoryBusiness, CategoryPhilosophy,
	CategoryPsychology, CategoryEducation,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var (
	// ErrNoCopiesAvailable is returned when checking out a book with no copies left.
	ErrNoCopiesAvailable = errs.Define(errs.ErrConflict, "no_copies_available", "no copies available")
	ErrDuplicateISBN     = errs.Define(errs.ErrConflict, "duplicate_isbn", "a book with this ISBN already exists")
	ErrBookInUse         = errs.Define(errs.ErrConflict, "book_in_use", "book has open loans or active reservations")
)

// Book is a catalog entry together with its availability counters.
type Book struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ISBN            string          `json:"isbn,omitempty" db:"isbn"`
	Title           string          `json:"title" db:"title"`
	Author          string          `json:"author" db:"author"`
	PublishedYear   int             `json:"published_year" db:"published_year"`
	Category        Category        `json:"category" db:"category"`
	Language        string          `json:"language" db:"language"`
	Publisher       string          `json:"publisher,omitempty" db:"publisher"`
	ShelfLocation   string          `json:"shelf_location,omitempty" db:"shelf_location"`
	Description     string          `json:"description,omitempty" db:"description"`
	Status          Status          `json:"status" db:"status"`
	CopiesAvailable int             `json:"copies_available" db:"copies_available"`
	TotalCopies     int             `json:"total_copies" db:"total_copies"`
	Rating          decimal.Decimal `json:"rating" db:"rating"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// IsAvailable reports whether the book can be lent right now.
func (b *Book) IsAvailable() bool {
	return b.Status == StatusAvailable && b.CopiesAvailable > 0
}

// CheckOut takes one copy off the shelf. The book becomes Borrowed when
// the last copy leaves.
func (b *Book) CheckOut() error {
	if b.CopiesAvailable < 1 {
		return ErrNoCopiesAvailable
	}
	b.CopiesAvailable--
	if b.CopiesAvailable == 0 {
		b.Status = StatusBorrowed
	}
	return nil
}

// CheckIn puts one copy back. It returns false, leaving the counters
// unchanged, when every copy is already on the shelf.
func (b *Book) CheckIn() bool {
	if b.CopiesAvailable >= b.TotalCopies {
		return false
	}
	b.CopiesAvailable++
	if b.Status == StatusBorrowed {
		b.Status = StatusAvailable
	}
	return true
}

// SetCopies replaces both counters and re-derives the lending status.
func (b *Book) SetCopies(total, available int) error {
	if total < 1 {
		return fmt.Errorf("%w: total copies must be at least 1", errs.ErrInvalidInput)
	}
	if available < 0 || available > total {
		return fmt.Errorf("%w: available copies must be between 0 and %d", errs.ErrInvalidInput, total)
	}

	b.TotalCopies = total
	b.CopiesAvailable = available
	switch {
	case available == 0 && b.Status == StatusAvailable:
		b.Status = StatusBorrowed
	case available > 0 && b.Status == StatusBorrowed:
		b.Status = StatusAvailable
	}
	return nil
}

// ApplyStatus sets a staff-chosen status. Borrowed cannot be set directly;
// it only follows from the counters.
func (b *Book) ApplyStatus(s Status) error {
	switch s {
	case StatusMaintenance, StatusReserved:
		b.Status = s
	case StatusAvailable:
		if b.CopiesAvailable == 0 {
			b.Status = StatusBorrowed
		} else {
			b.Status = StatusAvailable
		}
	case StatusBorrowed:
		return fmt.Errorf("%w: status Borrowed is derived from copies available", errs.ErrInvalidInput)
	default:
		return fmt.Errorf("%w: unknown status %q", errs.ErrInvalidInput, s)
	}
	return nil
}

// Filter narrows a catalog listing.
type Filter struct {
	Query         string
	Category      Category
	Status        Status
	AvailableOnly bool
	OrderBy       string
	Limit         int
	Offset        int
}

// Orderings accepted by Filter.OrderBy. A leading "-" sorts descending.
var Orderings = []string{
	"title", "-title", "author", "-author", "published_year", "-published_year",
	"rating", "-rating", "created_at", "-created_at",
}

const (
	DefaultOrder = "-created_at"
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize fills defaults and rejects unknown values.
func (f Filter) Normalize() (Filter, error) {
	if f.Category != "" && !f.Category.Valid() {
		return f, fmt.Errorf("%w: unknown category %q", errs.ErrInvalidInput, f.Category)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("%w: unknown status %q", errs.ErrInvalidInput, f.Status)
	}

	if f.OrderBy == "" {
		f.OrderBy = DefaultOrder
	}
	known := false
	for _, o := range Orderings {
		if o == f.OrderBy {
			known = true
			break
		}
	}
	if !known {
		return f, fmt.Errorf("%w: cannot order by %q", errs.ErrInvalidInput, f.OrderBy)
	}

	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}
