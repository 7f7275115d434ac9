package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/showroom-auto/showroom/internal/cli/ui"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/inventory"
)

// NewCarsCommand creates the cars command
func NewCarsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cars",
		Short: "Inspect the inventory",
	}
	cmd.AddCommand(newCarsListCommand(opts))
	return cmd
}

func newCarsListCommand(opts *globalOptions) *cobra.Command {
	var (
		statuses []string
		sort     string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cars in every status",
		Example: `  showroom cars list
  showroom cars list --status sold --sort price_desc --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.backends(cmd.Context())
			if err != nil {
				return err
			}
			inv, err := a.inventory(b)
			if err != nil {
				return err
			}
			page, err := inv.ListCars(cmd.Context(), inventory.ListQuery{
				Filter: domain.CarFilter{Statuses: statuses},
				Sort:   domain.ParseSort(sort),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(page.Items) == 0 {
				ui.WriteWarning(out, a.noColor(), "No cars match")
				return nil
			}

			table := ui.NewTable(out, []string{"ID", "CAR", "PRICE", "MILEAGE", "STATUS", "PHOTOS"}, &ui.TableOptions{NoColor: a.noColor()})
			for i := range page.Items {
				car := &page.Items[i]
				title := car.Title()
				if car.Featured {
					title += " ★"
				}
				table.AddStyledRow(statusStyle(car.Status),
					car.ID.String()[:8],
					title,
					fmt.Sprintf("%d", car.Price),
					fmt.Sprintf("%d km", car.Mileage),
					string(car.Status),
					fmt.Sprintf("%d", len(car.Images)),
				)
			}
			table.Render()
			if page.HasMore {
				fmt.Fprintf(out, "\nshowing the first %d, raise --limit for more\n", len(page.Items))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list these statuses ("+strings.Join(statusNames(), ", ")+")")
	cmd.Flags().StringVar(&sort, "sort", string(domain.SortNewest), "Sort order")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of cars")

	return cmd
}

func statusStyle(status domain.CarStatus) *color.Color {
	switch status {
	case domain.StatusAvailable:
		return ui.Green
	case domain.StatusReserved:
		return ui.Yellow
	default:
		return ui.Gray
	}
}

func statusNames() []string {
	names := make([]string, len(domain.CarStatuses))
	for i, s := range domain.CarStatuses {
		names[i] = string(s)
	}
	return names
}
