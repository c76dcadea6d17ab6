package serve

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/logging"
)

func findProcess(pid int) (*os.Process, error) {
	return os.FindProcess(pid)
}

// stopPollInterval and stopDeadline govern how long Stop waits for a
// gracefully-signalled server to exit (spec §4.5 "Shutdown", S6).
const (
	stopPollInterval = 200 * time.Millisecond
	stopDeadline     = 10 * time.Second
)

// Stop implements the `stop [--force]` CLI verb (spec §4.5 "Shutdown",
// §8 S6). A graceful stop POSTs /api/server/shutdown and polls the pid
// for death; force additionally kills the process and always cleans stale
// discovery files.
func Stop(ctx context.Context, paths *config.Paths, force bool) error {
	rec, err := ReadRecord(paths.DiscoveryFile())
	if err != nil {
		return err
	}
	if rec == nil {
		return errkind.New(errkind.NotFound, "no running server discovered")
	}

	if err := postShutdown(ctx, rec.URL); err != nil {
		logging.Warn().Err(err).Msg("graceful shutdown request failed")
	}

	// The server releases its writer lock (storage.FileLock's "<path>.lock"
	// sidecar) as its last act before exiting; watching for that is faster
	// than polling but not guaranteed to fire, so the poll loop below
	// still runs regardless.
	watchLockRelease(ctx, paths.WriterLockFile()+".lock", stopDeadline)

	deadline := time.Now().Add(stopDeadline)
	for time.Now().Before(deadline) {
		if !IsAlive(rec.PID) {
			return RemoveRecord(paths.DiscoveryFile(), paths.WriterLockFile())
		}
		time.Sleep(stopPollInterval)
	}

	if !force {
		return errkind.Newf(errkind.RequestTimeout, "server did not stop within %s; try: stop --force", stopDeadline)
	}

	if proc, err := findProcess(rec.PID); err == nil {
		_ = proc.Signal(syscall.SIGKILL)
	}
	return RemoveRecord(paths.DiscoveryFile(), paths.WriterLockFile())
}

func postShutdown(ctx context.Context, url string) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url+"/api/server/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
