package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrConfig, "target is not a directory")
	assert.Equal(t, "[CONFIG] target is not a directory", err.Error())
	assert.Equal(t, ErrConfig, err.Code)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := Wrapf(cause, ErrIo, "failed to write %q", "/etc/out")

	assert.Contains(t, err.Error(), "[IO]")
	assert.Contains(t, err.Error(), "permission denied")
	assert.ErrorIs(t, err, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrIo, "nothing"))
	assert.Nil(t, Wrapf(nil, ErrIo, "nothing %d", 1))
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(ErrSyncing, "one message")
	other := New(ErrSyncing, "another message")
	different := New(ErrPath, "a path problem")

	assert.True(t, errors.Is(err, other))
	assert.False(t, errors.Is(err, different))
}

func TestErrorCodeHelpers(t *testing.T) {
	err := Newf(ErrTemplating, "bad template %q", "x")
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, IsErrorCode(wrapped, ErrTemplating))
	assert.False(t, IsErrorCode(wrapped, ErrRendering))
	assert.Equal(t, ErrTemplating, GetErrorCode(wrapped))
	assert.Equal(t, ErrUnknown, GetErrorCode(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrSyncing, "conflict").
		WithDetail("dest", "/home/u/.bashrc").
		WithDetail("group", "bash")

	require.NotNil(t, err.Details)
	assert.Equal(t, "/home/u/.bashrc", err.Details["dest"])
	assert.Equal(t, "bash", err.Details["group"])
}
