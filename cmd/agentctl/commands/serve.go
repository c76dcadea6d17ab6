package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/httpapi"
	"github.com/agentctl/agentctl/internal/logging"
	"github.com/agentctl/agentctl/internal/serve"
	"github.com/agentctl/agentctl/internal/store"
)

var (
	servePort       int
	serveBackground bool
	serveTickEvery  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane HTTP server in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8765, "Listen port for the control plane")
	serveCmd.Flags().BoolVar(&serveBackground, "background", false, "Run detached, as spawned by discovery")
	serveCmd.Flags().DurationVar(&serveTickEvery, "tick", 1*time.Second, "Scheduler tick interval")
}

// runServe brings up the control plane: acquire the writer lock, open the
// store and controller, start the scheduler's tick loop, write the
// discovery record, then serve HTTP until a shutdown signal or
// /api/server/shutdown request arrives (spec §4.5 "Server discovery",
// "Shutdown").
func runServe(ctx context.Context) error {
	paths, err := openPaths()
	if err != nil {
		return err
	}

	lock, err := serve.AcquireWriterLock(paths.WriterLockFile())
	if err != nil {
		return err
	}
	defer lock.Release()

	s, err := store.Open(paths)
	if err != nil {
		return err
	}
	defer s.Close()

	ctrl, err := newController(s, paths)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	tickCtx, cancelTick := context.WithCancel(ctx)
	defer cancelTick()
	ctrl.Start(tickCtx, serveTickEvery)

	reload := func() error {
		cfg, err := config.Load(paths.Root)
		if err != nil {
			return err
		}
		logging.Info().Interface("config", cfg).Msg("reload requested")
		return nil
	}

	httpSrv := httpapi.New(httpapi.Config{Port: servePort, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}, paths, s, ctrl, reload)
	if err := httpSrv.WriteDiscovery(os.Getpid()); err != nil {
		return err
	}
	defer serve.RemoveRecord(paths.DiscoveryFile(), paths.WriterLockFile())

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return fmt.Errorf("control plane stopped: %w", err)
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("signal received, shutting down control plane")
	case <-httpSrv.ShutdownRequested():
		logging.Info().Msg("shutdown requested via control plane")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
