// internal/audit/service.go
package audit

import (
	"context"
)

// Service reads the audit trail. Entries are written by the services that
// perform the audited actions, inside their own transactions.
type Service interface {
	List(ctx context.Context, filter Filter) ([]*Entry, error)
}

// Store is the read side of the audit trail.
type Store interface {
	ListEntries(ctx context.Context, filter Filter) ([]*Entry, error)
}
