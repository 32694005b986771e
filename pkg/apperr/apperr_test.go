package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("update report: %w", NotFound("Report not found"))
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, http.StatusNotFound, Status(KindOf(err)))

	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, http.StatusInternalServerError, Status(KindOf(errors.New("boom"))))
}

func TestValidationMessageJoinsErrors(t *testing.T) {
	err := Validation("Validation failed", "Title is required", "Category is required")
	require.Equal(t, "Validation failed: Title is required; Category is required", err.Error())
	require.Equal(t, http.StatusBadRequest, Status(err.Kind))
}

func TestInternalUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("Failed to fetch reports", cause)
	require.ErrorIs(t, err, cause)
}
