package serve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")

	rec := Record{PID: 4242, Port: 9091, URL: "http://127.0.0.1:9091"}
	require.NoError(t, WriteRecord(path, rec))

	got, err := ReadRecord(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, rec, *got)
}

func TestReadRecordMissingIsNilNoError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")

	got, err := ReadRecord(path)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRemoveRecordToleratesAbsence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, RemoveRecord(filepath.Join(dir, "server.json"), filepath.Join(dir, "writer.lock")))
}

func TestRemoveRecordDeletesBoth(t *testing.T) {
	dir := t.TempDir()
	discoveryPath := filepath.Join(dir, "server.json")
	lockPath := filepath.Join(dir, "writer.lock")

	require.NoError(t, WriteRecord(discoveryPath, Record{PID: 1, Port: 1, URL: "http://x"}))
	require.NoError(t, os.WriteFile(lockPath, []byte("x"), 0644))

	require.NoError(t, RemoveRecord(discoveryPath, lockPath))

	_, err := os.Stat(lockPath)
	require.True(t, os.IsNotExist(err))
}

func TestIsAliveForCurrentProcess(t *testing.T) {
	require.True(t, IsAlive(os.Getpid()))
}

func TestIsAliveFalseForInvalidPID(t *testing.T) {
	require.False(t, IsAlive(0))
	require.False(t, IsAlive(-1))
}

func TestIsAliveFalseForExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.False(t, IsAlive(cmd.Process.Pid))
}

func TestProbeHealthzTrueOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.True(t, ProbeHealthz(context.Background(), srv.URL, time.Second))
}

func TestProbeHealthzFalseOnNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	require.False(t, ProbeHealthz(context.Background(), srv.URL, time.Second))
}

func TestProbeHealthzFalseOnUnreachable(t *testing.T) {
	require.False(t, ProbeHealthz(context.Background(), "http://127.0.0.1:1", 100*time.Millisecond))
}

func TestWaitHealthySucceedsOnceServerIsUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := WaitHealthy(context.Background(), srv.URL, 2*time.Second)
	require.NoError(t, err)
}

func TestWaitHealthyTimesOutWhenNeverHealthy(t *testing.T) {
	err := WaitHealthy(context.Background(), "http://127.0.0.1:1", 200*time.Millisecond)
	require.Error(t, err)
}
