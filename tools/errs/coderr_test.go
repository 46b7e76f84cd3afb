package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeErrorIsSurvivesWrapping(t *testing.T) {
	err := ErrConnNotFound.WrapMsg("lookup", "conn", "42")
	wrapped := fmt.Errorf("emit: %w", err)

	assert.True(t, ErrConnNotFound.Is(wrapped))
	assert.False(t, ErrSocketClosed.Is(wrapped))
	assert.Equal(t, ConnNotFound, Code(wrapped))
	assert.Contains(t, err.Error(), "conn=42")
}

func TestWithDetailAppends(t *testing.T) {
	e := ErrArgs.WithDetail("first")
	e = e.WithDetail("second")
	assert.Equal(t, "first, second", e.Detail)
	assert.Equal(t, "1001 ArgsError first, second", e.Error())
}

func TestErrPanic(t *testing.T) {
	require.NoError(t, ErrPanic(nil))

	err := ErrPanic("boom")
	require.Error(t, err)
	assert.Equal(t, ServerInternalError, Code(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestToStringOddKV(t *testing.T) {
	assert.Equal(t, "msg, a=1, b=MISSING", toString("msg", []any{"a", 1, "b"}))
}
