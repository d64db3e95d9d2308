package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches wrapped domain errors", func(t *testing.T) {
		err := fmt.Errorf("approve: %w", New(CodeConflict, "stale version"))
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeForbidden))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestErrorContext(t *testing.T) {
	err := New(CodeConflict, "workflow was modified concurrently").
		With("expected_version", int64(3), "actual_version", int64(4))

	assert.Equal(t, "workflow was modified concurrently expected_version=3 actual_version=4", err.Error())
	assert.True(t, err.Retryable())
	assert.False(t, New(CodeForbidden, "nope").Retryable())
}

func TestWrapUnwraps(t *testing.T) {
	root := errors.New("connection reset")
	err := Wrap(root, CodeInternal, "failed to load workflow")

	require.ErrorIs(t, err, root)
	assert.Equal(t, "failed to load workflow: connection reset", err.Error())
}
