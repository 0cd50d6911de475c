package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("create page: %w", Conflict("Page with slug %q already exists", "home"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, http.StatusConflict, KindOf(err).Status())
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := Internal("insert row", errors.New("connection reset by peer"))

	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("boom")))
	assert.Equal(t, "Page not found", PublicMessage(NotFound("Page not found")))
	assert.Equal(t, http.StatusInternalServerError, KindOf(err).Status())
}

func TestFieldValidationKeepsField(t *testing.T) {
	err := FieldValidation("question", "Field '%s' is required", "question")

	var ae *Error
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, "question", ae.Field)
	assert.Equal(t, http.StatusBadRequest, ae.Kind.Status())
}
