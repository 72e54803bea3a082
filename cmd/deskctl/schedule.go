package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/types"
)

func NewScheduleCommand() *cobra.Command {
	preset := 1

	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Recall a preset on a schedule",
		Long: `Recall a preset on a schedule.

The schedule command can be used in multiple ways:
  deskctl schedule 'minute hour day month weekday' --preset N  Set the schedule
  deskctl schedule disable                                     Disable the schedule
  deskctl schedule postpone [duration]                         Postpone the next recall
  deskctl schedule skip                                        Skip the next recall
  deskctl schedule show                                        Show the schedule

A recall is skipped when the desk is disconnected or moving.`,
		Example: `  deskctl schedule '0 10 * * 1-5' --preset 2 (Stand up at 10:00 on weekdays)
  deskctl schedule '30 13 * * *' --preset 1  (Sit down at 13:30 every day)`,
		GroupID: gPresets,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no arguments, show the current schedule
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			if preset < 1 {
				return fmt.Errorf("preset numbers start at 1")
			}
			return runScheduleSet(cmd, args[0], preset-1)
		},
	}

	cmd.Flags().IntVarP(&preset, "preset", "p", 1, "preset number to recall")

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the preset schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.SetSchedule("", 0); err != nil {
				return err
			}
			cmd.Println("Preset schedule disabled.")
			return nil
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled recall",
		Example: `  deskctl schedule postpone      (Postpone by 30 minutes)
  deskctl schedule postpone 1h   (Postpone by 1 hour)`,
		Long: `Postpone the next scheduled recall by a duration.
If no duration is provided, defaults to 30 minutes. The recall cannot be moved past the one after it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := 30 * time.Minute
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}

			st, err := apiClient.PostponeSchedule(d)
			if err != nil {
				return err
			}
			cmd.Printf("Next recall postponed by %s.\n", d)
			printNextRuns(cmd, st)
			return nil
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled recall",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.SkipSchedule()
			if err != nil {
				return err
			}
			cmd.Println("Next scheduled recall skipped.")
			printNextRuns(cmd, st)
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the preset schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string, preset int) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	st, err := apiClient.SetSchedule(cronExpr, preset)
	if err != nil {
		return err
	}
	cmd.Printf("Preset %d scheduled.\n", st.Preset+1)
	printNextRuns(cmd, st)
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	st, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if !st.Enabled() {
		cmd.Println("Preset schedule is not set.")
		return nil
	}
	cmd.Printf("Schedule: %s, recalls preset %d\n", bold("%s", st.Cron), st.Preset+1)
	printNextRuns(cmd, st)
	return nil
}

func printNextRuns(cmd *cobra.Command, st *types.ScheduleStatus) {
	if len(st.NextRuns) == 0 {
		return
	}
	cmd.Printf("Next %d run(s):\n", len(st.NextRuns))
	for _, run := range st.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}
