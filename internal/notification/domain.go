// internal/notification/domain.go
package notification

import (
	"time"

	"github.com/google/uuid"

	"librarium/internal/errs"
)

// Type classifies a notification.
type Type string

const (
	TypeDueSoon     Type = "DUE_SOON"
	TypeOverdue     Type = "OVERDUE"
	TypeAvailable   Type = "AVAILABLE"
	TypeReservation Type = "RESERVATION"
	TypeFine        Type = "FINE"
	TypeGeneral     Type = "GENERAL"
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	switch t {
	case TypeDueSoon, TypeOverdue, TypeAvailable, TypeReservation, TypeFine, TypeGeneral:
		return true
	}
	return false
}

// Email templates. Each name has a "<name>.subject" and a "<name>.body"
// definition in templates/emails.tmpl.
const (
	TemplateWelcome              = "welcome"
	TemplateDueSoon              = "due_soon"
	TemplateOverdue              = "overdue"
	TemplateBookAvailable        = "book_available"
	TemplateReservationConfirmed = "reservation_confirmed"
	TemplateFine                 = "fine_payment"
)

// ErrSuppressed is returned by Notify when a deduplicated notice was
// already delivered today.
var ErrSuppressed = errs.Define(errs.ErrConflict, "notification_suppressed", "notification already sent today")

// Notification is an in-app notice shown to one user.
type Notification struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	UserID    uuid.UUID     `json:"user_id" db:"user_id"`
	Type      Type          `json:"type" db:"type"`
	Title     string        `json:"title" db:"title"`
	Message   string        `json:"message" db:"message"`
	Link      string        `json:"link,omitempty" db:"link"`
	Ref       uuid.NullUUID `json:"ref" db:"ref"`
	Read      bool          `json:"read" db:"read"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Notice is what lifecycle code hands to a Sink.
type Notice struct {
	UserID  uuid.UUID
	Type    Type
	Title   string
	Message string
	Link    string
	// Ref is the record that triggered the notice, if any.
	Ref uuid.UUID
	// Email, when set, also triggers an email rendered from a template.
	Email *Email
	// Dedupe limits the notice to one per (user, type, ref) per day.
	Dedupe bool
}

// Email selects a template and the values it is rendered with.
type Email struct {
	Template string
	Data     map[string]any
}

// Recipient is the addressee of an email.
type Recipient struct {
	Email string `db:"email"`
	Name  string `db:"name"`
}

// Message is a rendered email ready for a Mailer.
type Message struct {
	To      string
	Subject string
	Body    string
}
