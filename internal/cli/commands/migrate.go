package commands

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/showroom-auto/showroom/internal/cli/ui"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Run and manage database migrations.

Migrations are embedded in the binary and applied with goose to the database
named in the configuration.`,
	}

	cmd.AddCommand(newMigrateUpCommand(opts))
	cmd.AddCommand(newMigrateDownCommand(opts))
	cmd.AddCommand(newMigrateStatusCommand(opts))

	return cmd
}

func newMigrateUpCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			version, err := a.store.Migrate(cmd.Context())
			if err != nil {
				return withHint(err, "check the database section of the configuration")
			}
			ui.WriteSuccess(cmd.OutOrStdout(), a.noColor(), "Database is at version %d", version)
			return nil
		},
	}
}

func newMigrateDownCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			version, err := a.store.MigrateDown(cmd.Context())
			if err != nil {
				return err
			}
			ui.WriteWarning(cmd.OutOrStdout(), a.noColor(), "Rolled back to version %d", version)
			return nil
		},
	}
}

func newMigrateStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			states, err := a.store.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := ui.NewTable(out, []string{"VERSION", "NAME", "STATUS"}, &ui.TableOptions{NoColor: a.noColor()})
			pending := 0
			for _, s := range states {
				if s.Applied {
					table.AddStyledRow(ui.Green, strconv.FormatInt(s.Version, 10), s.Name, "applied")
					continue
				}
				pending++
				table.AddStyledRow(ui.Yellow, strconv.FormatInt(s.Version, 10), s.Name, "pending")
			}
			table.Render()

			fmt.Fprintln(out)
			summary := color.New(color.FgCyan)
			if a.noColor() {
				summary.DisableColor()
			}
			summary.Fprintf(out, "%d migrations, %d pending\n", len(states), pending)
			return nil
		},
	}
}
