package commands

import (
	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/serve"
)

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background control-plane server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		return serve.Stop(cmd.Context(), paths, stopForce)
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Kill the server if it does not stop gracefully")
	stopCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the discovered server's status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := openPaths()
			if err != nil {
				return err
			}
			rec, err := serve.ReadRecord(paths.DiscoveryFile())
			if err != nil {
				return err
			}
			if rec == nil {
				return printJSON(map[string]any{"running": false})
			}
			return printJSON(map[string]any{
				"running": serve.IsAlive(rec.PID),
				"pid":     rec.PID,
				"url":     rec.URL,
			})
		},
	})
}
