package commands

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/showroom-auto/showroom/internal/cli/ui"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/web/auth"
)

// NewUserCommand creates the user command
func NewUserCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage back-office accounts",
	}

	cmd.AddCommand(newUserCreateCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))

	return cmd
}

type userCreateFlags struct {
	email    string
	name     string
	password string
}

func newUserCreateCommand(opts *globalOptions) *cobra.Command {
	flags := &userCreateFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long: `Create an account that can sign in to the back office.

Missing values are prompted for. Whether the account is an admin depends on
auth.admin_domains: when the list is empty every account is an admin.`,
		Example: `  # Prompt for everything
  showroom user create

  # Non-interactive
  showroom user create --email manager@dealer.example --name "Sales Manager" --password '...'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptUser(flags); err != nil {
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
			user, err := inv.CreateUser(cmd.Context(), flags.email, flags.name, flags.password)
			if err != nil {
				return err
			}

			ui.WriteSuccess(cmd.OutOrStdout(), a.noColor(), "Created %s", user.Email)
			if !auth.NewAdminPolicy(a.config.Auth.AdminDomains).IsAdmin(user.Email) {
				ui.WriteWarning(cmd.OutOrStdout(), a.noColor(), "%s is not in an admin domain and cannot open the back office", user.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.email, "email", "", "E-mail address used to sign in")
	cmd.Flags().StringVar(&flags.name, "name", "", "Display name")
	cmd.Flags().StringVar(&flags.password, "password", "", fmt.Sprintf("Password (at least %d characters)", auth.MinPasswordLength))

	return cmd
}

// promptUser asks for whatever the flags left empty
func promptUser(flags *userCreateFlags) error {
	var questions []*survey.Question
	if flags.email == "" {
		questions = append(questions, &survey.Question{
			Name:     "email",
			Prompt:   &survey.Input{Message: "E-mail:"},
			Validate: survey.ComposeValidators(survey.Required, validateEmail),
		})
	}
	if flags.name == "" {
		questions = append(questions, &survey.Question{
			Name:   "name",
			Prompt: &survey.Input{Message: "Display name:"},
		})
	}
	if flags.password == "" {
		questions = append(questions, &survey.Question{
			Name:     "password",
			Prompt:   &survey.Password{Message: "Password:"},
			Validate: survey.ComposeValidators(survey.Required, validatePassword),
		})
	}
	if len(questions) == 0 {
		return nil
	}

	answers := struct {
		Email    string `survey:"email"`
		Name     string `survey:"name"`
		Password string `survey:"password"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}
	if flags.email == "" {
		flags.email = answers.Email
	}
	if flags.name == "" {
		flags.name = answers.Name
	}
	if flags.password == "" {
		flags.password = answers.Password
	}
	return nil
}

func validateEmail(ans interface{}) error {
	s, _ := ans.(string)
	if !domain.ValidEmail(domain.NormalizeEmail(s)) {
		return errors.New("not a valid e-mail address")
	}
	return nil
}

func validatePassword(ans interface{}) error {
	s, _ := ans.(string)
	return auth.ValidatePassword(s)
}

func newUserListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				ui.WriteWarning(cmd.OutOrStdout(), a.noColor(), "No accounts yet, create one with: showroom user create")
				return nil
			}

			policy := auth.NewAdminPolicy(a.config.Auth.AdminDomains)
			table := ui.NewTable(cmd.OutOrStdout(), []string{"EMAIL", "NAME", "ROLE", "LAST SIGN-IN"}, &ui.TableOptions{NoColor: a.noColor()})
			for _, u := range users {
				lastLogin := "never"
				if u.LastLoginAt != nil {
					lastLogin = u.LastLoginAt.Local().Format("2006-01-02 15:04")
				}
				if policy.IsAdmin(u.Email) {
					table.AddStyledRow(ui.Green, u.Email, u.Name(), "admin", lastLogin)
					continue
				}
				table.AddStyledRow(ui.Gray, u.Email, u.Name(), "user", lastLogin)
			}
			table.Render()
			return nil
		},
	}
}
