package serve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireWriterLockExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "writer.lock")

	first, err := AcquireWriterLock(path)
	require.NoError(t, err)

	_, err = AcquireWriterLock(path)
	require.Error(t, err, "a second acquire on the same path must fail while the first is held")

	require.NoError(t, first.Release())

	second, err := AcquireWriterLock(path)
	require.NoError(t, err, "after Release, the lock must be acquirable again")
	require.NoError(t, second.Release())
}
