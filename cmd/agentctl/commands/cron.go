package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/scheduler"
)

var (
	cronTargetID string
	cronEveryMs  int64
	cronAtMs     int64
	cronExpr     string
	cronTZ       string
	cronEnabled  bool
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage cron programs",
}

var cronListCmd = &cobra.Command{
	Use:  "list",
	Args: cobra.NoArgs,
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		return printJSON(ctrl.ListCron())
	}),
}

var cronStatusCmd = &cobra.Command{
	Use:  "status",
	Args: cobra.NoArgs,
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		return printJSON(ctrl.CronStatus())
	}),
}

var cronGetCmd = &cobra.Command{
	Use:  "get <program-id>",
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		cp, err := ctrl.GetCron(args[0])
		if err != nil {
			return err
		}
		return printJSON(cp)
	}),
}

var cronCreateCmd = &cobra.Command{
	Use:  "create",
	Args: cobra.NoArgs,
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		schedule, err := parseCronSchedule()
		if err != nil {
			return err
		}
		cp, err := ctrl.CreateCron(cronTargetID, schedule)
		if err != nil {
			return err
		}
		return printJSON(cp)
	}),
}

var cronUpdateCmd = &cobra.Command{
	Use:  "update <program-id>",
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		patch := scheduler.CronPatch{}
		if cronEveryMs > 0 || cronAtMs > 0 || cronExpr != "" {
			schedule, err := parseCronSchedule()
			if err != nil {
				return err
			}
			patch.Schedule = &schedule
		}
		if cronUpdateCmd.Flags().Changed("enabled") {
			patch.Enabled = &cronEnabled
		}
		cp, err := ctrl.UpdateCron(args[0], patch)
		if err != nil {
			return err
		}
		return printJSON(cp)
	}),
}

var cronDeleteCmd = &cobra.Command{
	Use:  "delete <program-id>",
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctrl *scheduler.Controller, args []string) error {
		if err := ctrl.DeleteCron(args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	}),
}

func parseCronSchedule() (scheduler.CronSchedule, error) {
	set := 0
	var sched scheduler.CronSchedule
	if cronEveryMs > 0 {
		sched.EveryMs = &cronEveryMs
		set++
	}
	if cronAtMs > 0 {
		sched.AtMs = &cronAtMs
		set++
	}
	if cronExpr != "" {
		sched.Cron = &scheduler.CronExpr{Expr: cronExpr, TZ: cronTZ}
		set++
	}
	if set != 1 {
		return sched, fmt.Errorf("exactly one of --every-ms, --at-ms, --cron must be set")
	}
	return sched, nil
}

func init() {
	for _, c := range []*cobra.Command{cronCreateCmd, cronUpdateCmd} {
		c.Flags().StringVar(&cronTargetID, "target", "", "Target run's root issue id")
		c.Flags().Int64Var(&cronEveryMs, "every-ms", 0, "Fire every N milliseconds")
		c.Flags().Int64Var(&cronAtMs, "at-ms", 0, "Fire once at this unix-ms timestamp")
		c.Flags().StringVar(&cronExpr, "cron", "", "Cron expression")
		c.Flags().StringVar(&cronTZ, "tz", "UTC", "Timezone for --cron")
	}
	cronUpdateCmd.Flags().BoolVar(&cronEnabled, "enabled", true, "Enable/disable the program")

	cronCmd.AddCommand(cronListCmd, cronGetCmd, cronStatusCmd, cronCreateCmd, cronUpdateCmd, cronDeleteCmd)
}
