// internal/validation/validation_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/internal/errs"
)

type sample struct {
	Name  string `validate:"required,max=5"`
	Days  int    `validate:"min=1,max=30"`
	Email string `validate:"omitempty,email"`
}

func TestStructPasses(t *testing.T) {
	assert.NoError(t, Struct(sample{Name: "ok", Days: 14}))
}

func TestStructCollectsFieldMessages(t *testing.T) {
	err := Struct(sample{Name: "", Days: 31, Email: "nope"})
	require.Error(t, err)

	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "days must be at most 30")
	assert.Contains(t, err.Error(), "email must be a valid email address")
}
