package serve

import (
	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/storage"
)

// WriterLock guards exclusive access to a workspace's store, released by
// calling Release (or letting the process exit, since it is flock-based
// and dies with the file descriptor).
type WriterLock struct {
	lock *storage.FileLock
}

// AcquireWriterLock takes the control-plane writer lock for a workspace,
// failing immediately if another process already holds it (spec §5
// "single writer"). Every long-lived, store-mutating command (serve, run,
// resume) should hold one for its lifetime.
func AcquireWriterLock(writerLockPath string) (*WriterLock, error) {
	lock := storage.NewFileLock(writerLockPath)
	if !lock.TryLock() {
		return nil, errkind.New(errkind.StorageIO, "another process already holds the workspace writer lock")
	}
	return &WriterLock{lock: lock}, nil
}

// Release gives up the lock, letting watchLockRelease-based waiters (and
// the next AcquireWriterLock) proceed.
func (w *WriterLock) Release() error {
	return w.lock.Unlock()
}
