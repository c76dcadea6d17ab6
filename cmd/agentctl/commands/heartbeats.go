package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/scheduler"
)

var (
	hbTargetID    string
	hbEveryMs     int64
	hbAutoDisable bool
	hbEnabled     bool
)

var heartbeatsCmd = &cobra.Command{
	Use:   "heartbeats",
	Short: "Manage heartbeat programs",
}

var heartbeatsListCmd = &cobra.Command{
	Use:  "list",
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		return printJSON(ctrl.ListHeartbeats())
	}),
}

var heartbeatsGetCmd = &cobra.Command{
	Use:  "get <program-id>",
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		hb, err := ctrl.GetHeartbeat(args[0])
		if err != nil {
			return err
		}
		return printJSON(hb)
	}),
}

var heartbeatsCreateCmd = &cobra.Command{
	Use:  "create",
	Args: cobra.NoArgs,
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		hb, err := ctrl.CreateHeartbeat(hbTargetID, hbEveryMs, hbAutoDisable)
		if err != nil {
			return err
		}
		return printJSON(hb)
	}),
}

var heartbeatsUpdateCmd = &cobra.Command{
	Use:  "update <program-id>",
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		patch := scheduler.HeartbeatPatch{}
		if hbEveryMs > 0 {
			patch.EveryMs = &hbEveryMs
		}
		if heartbeatsUpdateCmd.Flags().Changed("enabled") {
			patch.Enabled = &hbEnabled
		}
		hb, err := ctrl.UpdateHeartbeat(args[0], patch)
		if err != nil {
			return err
		}
		return printJSON(hb)
	}),
}

var heartbeatsDeleteCmd = &cobra.Command{
	Use:  "delete <program-id>",
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		if err := ctrl.DeleteHeartbeat(args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	}),
}

func init() {
	heartbeatsCreateCmd.Flags().StringVar(&hbTargetID, "target", "", "Target run's root issue id")
	heartbeatsCreateCmd.Flags().Int64Var(&hbEveryMs, "every-ms", 60000, "Fire interval in milliseconds")
	heartbeatsCreateCmd.Flags().BoolVar(&hbAutoDisable, "auto-disable", true, "Disable once the target reaches a terminal state")

	heartbeatsUpdateCmd.Flags().Int64Var(&hbEveryMs, "every-ms", 0, "New fire interval in milliseconds")
	heartbeatsUpdateCmd.Flags().BoolVar(&hbEnabled, "enabled", true, "Enable/disable the program")

	heartbeatsCmd.AddCommand(heartbeatsListCmd, heartbeatsGetCmd, heartbeatsCreateCmd, heartbeatsUpdateCmd, heartbeatsDeleteCmd)
}
