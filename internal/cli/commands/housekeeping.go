package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/showroom-auto/showroom/internal/cli/ui"
	"github.com/showroom-auto/showroom/internal/config"
	"github.com/showroom-auto/showroom/internal/housekeeping"
)

// NewHousekeepingCommand creates the housekeeping command
func NewHousekeepingCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "housekeeping",
		Short: "Run maintenance tasks outside the server",
	}
	cmd.AddCommand(newHousekeepingRunCommand(opts))
	return cmd
}

func newHousekeepingRunCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [task...]",
		Short: "Run maintenance tasks once",
		Long: fmt.Sprintf(`Run maintenance tasks once and report the outcome.

Without arguments every task runs. Known tasks: %s, %s, %s.`,
			housekeeping.TaskPruneActivities, housekeeping.TaskSweepOrphans, housekeeping.TaskBroadcastStats),
		Example: `  # Prune old activities from cron
  showroom housekeeping run prune-activities`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.backends(ctx)
			if err != nil {
				return err
			}
			inv, err := a.inventory(b)
			if err != nil {
				return err
			}

			scheduler := housekeeping.NewScheduler(a.logger.Named("housekeeping"))
			if err := housekeeping.RegisterDefaults(scheduler, inv, tasksConfig(a.config)); err != nil {
				return err
			}
			if len(args) == 0 {
				for _, st := range scheduler.Status() {
					args = append(args, st.Name)
				}
			}

			var failed error
			for _, name := range args {
				if err := scheduler.RunNow(ctx, name); err != nil {
					if errors.Is(err, housekeeping.ErrUnknownTask) {
						return withHint(err, "run 'showroom housekeeping run --help' for the task list")
					}
					failed = errors.Join(failed, err)
				}
			}

			table := ui.NewTable(cmd.OutOrStdout(), []string{"TASK", "RUNS", "RESULT"}, &ui.TableOptions{NoColor: a.noColor()})
			for _, st := range scheduler.Status() {
				switch {
				case st.Runs == 0:
					table.AddStyledRow(ui.Gray, st.Name, "0", "skipped")
				case st.LastErr != nil:
					table.AddStyledRow(ui.Red, st.Name, strconv.Itoa(st.Runs), st.LastErr.Error())
				default:
					table.AddStyledRow(ui.Green, st.Name, strconv.Itoa(st.Runs), "ok")
				}
			}
			table.Render()
			return failed
		},
	}
}

// tasksConfig maps the housekeeping section onto the scheduler's task settings
func tasksConfig(cfg *config.Config) housekeeping.TasksConfig {
	tasks := housekeeping.DefaultTasksConfig()
	tasks.ActivityRetention = cfg.Housekeeping.ActivityRetention
	tasks.OrphanGrace = cfg.Housekeeping.OrphanGrace
	tasks.StatsInterval = cfg.Housekeeping.StatsInterval
	return tasks
}
