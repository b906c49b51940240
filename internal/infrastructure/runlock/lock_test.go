package runlock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondAcquireFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "harvester.lock")
	first := New(path)
	require.NoError(t, first.Acquire())

	second := New(path)
	assert.ErrorIs(t, second.Acquire(), ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
	assert.Equal(t, path, second.Path())
}
