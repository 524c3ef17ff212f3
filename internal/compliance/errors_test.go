package compliance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     ErrorKind
		contains string
	}{
		{"NotFound", NotFoundError("get_status", "status", "s-1"), ErrNotFound, KindNotFound, `status "s-1" not found`},
		{"Validation", ValidationError("update", "requirement", "r-1", "bad percentage"), ErrValidation, KindValidation, "bad percentage"},
		{"Store", StoreError("create", "status", "s-2", errors.New("connection refused")), ErrStoreUnavailable, KindStoreUnavailable, "connection refused"},
		{"Conflict", ConflictError("update", "status", "s-3"), ErrConflict, KindConflict, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to handle request: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}

	t.Run("KindsDoNotCrossMatch", func(t *testing.T) {
		err := NotFoundError("get", "framework", "x")
		assert.False(t, errors.Is(err, ErrConflict))
		assert.False(t, errors.Is(err, ErrValidation))
	})

	t.Run("UnwrapsCause", func(t *testing.T) {
		cause := errors.New("timeout")
		assert.ErrorIs(t, StoreError("query", "status", "", cause), cause)
	})

	t.Run("KindOfPlainError", func(t *testing.T) {
		assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	})
}
