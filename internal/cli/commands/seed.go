package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/showroom-auto/showroom/internal/cli/ui"
	"github.com/showroom-auto/showroom/internal/domain"
)

// seedActor is recorded in the activity log for seeded records
const seedActor = "seed"

// seedFile is the layout of an inventory seed file
type seedFile struct {
	Settings *domain.Settings  `yaml:"settings"`
	Cars     []domain.CarInput `yaml:"cars"`
}

func readSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Settings == nil && len(f.Cars) == 0 {
		return nil, fmt.Errorf("%s has no settings or cars", path)
	}
	return &f, nil
}

// NewSeedCommand creates the seed command
func NewSeedCommand(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load settings and cars from a YAML file",
		Long: `Load the dealership settings and a list of cars from a YAML file.

Every car is validated like a back-office submission; invalid entries are
reported and skipped.`,
		Example: `  showroom seed --file inventory.yaml

  # inventory.yaml
  settings:
    dealership_name: Nordic Cars
    currency: EUR
  cars:
    - make: Volvo
      model: XC60
      year: 2021
      price: 38900
      mileage: 41000
      body_type: suv
      fuel_type: hybrid
      featured: true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := readSeedFile(file)
			if err != nil {
				return err
			}

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
			out := cmd.OutOrStdout()

			if seed.Settings != nil {
				if _, err := inv.UpdateSettings(cmd.Context(), seedActor, *seed.Settings); err != nil {
					return fmt.Errorf("saving settings: %w", err)
				}
				ui.WriteSuccess(out, a.noColor(), "Saved dealership settings")
			}

			created, skipped := 0, 0
			for i, in := range seed.Cars {
				car, err := inv.CreateCar(cmd.Context(), seedActor, in)
				if err != nil {
					var verrs *domain.ValidationErrors
					if !errors.As(err, &verrs) {
						return err
					}
					skipped++
					ui.WriteWarning(out, a.noColor(), "car #%d (%s %s) skipped: %v", i+1, in.Make, in.Model, verrs)
					continue
				}
				created++
				ui.WriteSuccess(out, a.noColor(), "Added %s", car.Title())
			}

			fmt.Fprintf(out, "\n%d cars added, %d skipped\n", created, skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "inventory.yaml", "Seed file to load")

	return cmd
}
