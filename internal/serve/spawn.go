package serve

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/logging"
)

// SpawnHealthDeadline bounds how long Discover waits for a freshly spawned
// server to report healthy before giving up.
const SpawnHealthDeadline = 15 * time.Second

// Discovery resolves the single background server for a workspace,
// reusing a live one or spawning a fresh one (spec §4.5 "Server
// discovery", §8 property 7).
type Discovery struct {
	paths *config.Paths
	port  int
}

// NewDiscovery builds a Discovery bound to paths, defaulting to port when
// a new server must be spawned and no discovery record names one.
func NewDiscovery(paths *config.Paths, port int) *Discovery {
	return &Discovery{paths: paths, port: port}
}

// Discover reuses a live, healthy server named by the discovery record, or
// cleans a stale record and spawns a fresh one via selfExec (typically
// os.Args[0] re-invoked with "serve --background").
func (d *Discovery) Discover(ctx context.Context, selfExec string) (Record, error) {
	existing, err := ReadRecord(d.paths.DiscoveryFile())
	if err != nil {
		return Record{}, err
	}

	if existing != nil && IsAlive(existing.PID) && ProbeHealthz(ctx, existing.URL, 2*time.Second) {
		logging.Info().Int("pid", existing.PID).Str("url", existing.URL).Msg("reusing discovered server")
		return *existing, nil
	}

	if existing != nil {
		logging.Info().Int("pid", existing.PID).Msg("discovery record stale, cleaning")
		if err := RemoveRecord(d.paths.DiscoveryFile(), d.paths.WriterLockFile()); err != nil {
			return Record{}, err
		}
	}

	return d.spawn(ctx, selfExec)
}

func (d *Discovery) spawn(ctx context.Context, selfExec string) (Record, error) {
	port := d.port
	if port == 0 {
		port = 8765
	}

	cmd := exec.Command(selfExec, "serve", "--background", "--port", fmt.Sprintf("%d", port), "--directory", d.paths.Root)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return Record{}, errkind.Wrap(errkind.StorageIO, "spawn background server", err)
	}
	// Detach: the child outlives this process once Start succeeds.
	go func() { _ = cmd.Wait() }()

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := WaitHealthy(ctx, url, SpawnHealthDeadline); err != nil {
		return Record{}, err
	}

	rec, err := ReadRecord(d.paths.DiscoveryFile())
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, errkind.New(errkind.ServerUnreachable, "spawned server did not write a discovery record")
	}
	logging.Info().Int("pid", rec.PID).Str("url", rec.URL).Msg("spawned background server")
	return *rec, nil
}

// SelfExec returns the path to the currently running binary, for spawning
// a detached background server instance of itself.
func SelfExec() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errkind.Wrap(errkind.StorageIO, "resolve self executable", err)
	}
	return exe, nil
}
