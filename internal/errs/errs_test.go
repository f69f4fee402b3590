// internal/errs/errs_test.go
package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinedErrorKeepsKind(t *testing.T) {
	errDuplicate := Define(ErrConflict, "duplicate_thing", "thing already exists")
	wrapped := fmt.Errorf("create thing: %w", errDuplicate)

	assert.ErrorIs(t, wrapped, errDuplicate)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "create thing: thing already exists", wrapped.Error())
	assert.Equal(t, "duplicate_thing", Code(wrapped))
}

func TestCodeFallsBackToKind(t *testing.T) {
	assert.Equal(t, "not_found", Code(fmt.Errorf("book 1: %w", ErrNotFound)))
	assert.Equal(t, "invalid_input", Code(ErrInvalidInput))
	assert.Equal(t, "rate_limited", Code(ErrRateLimited))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}
