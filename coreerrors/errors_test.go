package coreerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryFromKind(t *testing.T) {
	e := New("", TypeRateLimited, "run-1", "rate limited", nil)
	assert.Equal(t, Transient, e.Category)
	assert.True(t, e.Retryable())

	e = New("", TypeAuth, "run-1", "bad key", nil)
	assert.Equal(t, Permanent, e.Category)
	assert.False(t, e.Retryable())
}

func TestAsUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := New(Transient, TypeTimeout, "run-1", "timed out", cause)
	outer := errors.Join(errors.New("context"), wrapped)

	ce, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, TypeTimeout, ce.Kind)
	assert.ErrorIs(t, ce, cause)
}
