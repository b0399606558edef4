package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches code on direct error", func(t *testing.T) {
		err := New(CodeCapacityExceeded, "whitelist is full")
		assert.True(t, HasCode(err, CodeCapacityExceeded))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("register: %w", New(CodeCapacityExceeded, "whitelist is full"))
		assert.True(t, Is(err, CodeCapacityExceeded))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "failed to count members")

	require.ErrorIs(t, err, cause)
	de, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "failed to count members", de.Message)
	assert.Contains(t, err.Error(), "connection refused")
}
