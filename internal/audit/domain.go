// internal/audit/domain.go
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of change an entry records.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionBorrow  Action = "BORROW"
	ActionReturn  Action = "RETURN"
	ActionReserve Action = "RESERVE"
	ActionCancel  Action = "CANCEL"
	ActionLost    Action = "LOST"
	ActionPay     Action = "PAY"
)

// Entry is one append-only record of a lifecycle action. Data holds the
// JSON encoding of the domain event that caused it.
type Entry struct {
	ID          int64           `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Action      Action          `json:"action" db:"action"`
	Entity      string          `json:"entity" db:"entity"`
	EntityID    uuid.UUID       `json:"entity_id" db:"entity_id"`
	Description string          `json:"description" db:"description"`
	Data        json.RawMessage `json:"data,omitempty" db:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// NewEntry builds an entry with payload marshalled into Data.
func NewEntry(userID uuid.UUID, action Action, entity string, entityID uuid.UUID, description string, payload any, at time.Time) (*Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return &Entry{
		UserID:      userID,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		Description: description,
		Data:        data,
		CreatedAt:   at.UTC(),
	}, nil
}

// Filter selects entries for listing. AfterID is a cursor: only entries
// with a larger id are returned, oldest first.
type Filter struct {
	UserID   uuid.UUID
	Entity   string
	EntityID uuid.UUID
	Action   Action
	AfterID  int64
	Limit    int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)
