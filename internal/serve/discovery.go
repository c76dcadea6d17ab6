// Package serve is the serve lifecycle (spec §4.5): background-server
// discovery and spawn, operator-TUI attachment, signal handling, and
// graceful shutdown.
package serve

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/storage"
)

// Record is the discovery record written at control-plane/server.json
// (spec §3 "Discovery record", §6).
type Record struct {
	PID  int    `json:"pid"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// recordStore builds the path-keyed storage rooted at path's directory, so
// the discovery record is read/written through the flock-guarded,
// atomic-rename Storage. It is the only record kept in Storage.
func recordStore(path string) (*storage.Storage, []string) {
	dir := filepath.Dir(path)
	key := strings.TrimSuffix(filepath.Base(path), ".json")
	return storage.New(dir), []string{key}
}

// ReadRecord reads the discovery record at path. A missing file is not an
// error: it returns (nil, nil).
func ReadRecord(path string) (*Record, error) {
	st, key := recordStore(path)
	var rec Record
	if err := st.Get(context.Background(), key, &rec); err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.StorageIO, "read discovery record", err)
	}
	return &rec, nil
}

// WriteRecord writes rec to path atomically (spec §6 "Discovery record").
func WriteRecord(path string, rec Record) error {
	st, key := recordStore(path)
	if err := st.Put(context.Background(), key, rec); err != nil {
		return errkind.Wrap(errkind.StorageIO, "write discovery record", err)
	}
	return nil
}

// RemoveRecord deletes the discovery record and writer lock at their
// conventional paths, tolerating absence.
func RemoveRecord(discoveryPath, writerLockPath string) error {
	for _, p := range []string{discoveryPath, writerLockPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errkind.Wrap(errkind.StorageIO, "remove "+p, err)
		}
	}
	return nil
}

// IsAlive reports whether pid names a live process. On POSIX this is a
// zero-signal probe.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ProbeHealthz issues one GET against url+"/healthz" with a short timeout,
// reporting whether it returned 200.
func ProbeHealthz(ctx context.Context, url string, timeout time.Duration) bool {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitHealthy polls url+"/healthz" with exponential backoff until it
// succeeds or deadline elapses (spec §4.5 "Server discovery").
func WaitHealthy(ctx context.Context, url string, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 1 * time.Second
	b.MaxElapsedTime = deadline

	op := func() error {
		if ProbeHealthz(ctx, url, 2*time.Second) {
			return nil
		}
		return errkind.New(errkind.ServerUnreachable, "server not yet healthy")
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return errkind.Wrap(errkind.ServerUnreachable, "server did not become healthy before deadline", err)
	}
	return nil
}
