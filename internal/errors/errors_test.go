package errors

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	t.Run("wrapped not found still matches", func(t *testing.T) {
		err := Wrap(ErrNotFound, "job abc")
		assert.True(t, IsNotFound(err))
		assert.False(t, IsConflict(err))
		assert.Contains(t, err.Error(), "job abc")
	})

	t.Run("formatted constructors", func(t *testing.T) {
		assert.True(t, IsNotFound(NewNotFoundError("application %d", 42)))
		assert.True(t, Is(NewInvalidRequestError("page %d", -1), ErrInvalidRequest))
	})

	t.Run("nil is never a sentinel", func(t *testing.T) {
		assert.False(t, IsNotFound(nil))
		assert.False(t, IsConflict(nil))
		assert.False(t, IsForbidden(nil))
	})

	t.Run("wrapping keeps the cause", func(t *testing.T) {
		err := Wrap(sql.ErrNoRows, "scan job")
		assert.True(t, Is(err, sql.ErrNoRows))
		assert.NotNil(t, GetStack(err))
	})
}
