package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/server"
	"github.com/rhuss/identity/pkg/users"
)

// userView is the output of "users show".
type userView struct {
	ID       auth.UserID `json:"id"`
	Username string      `json:"username"`
	Roles    auth.Roles  `json:"roles"`
	Claims   auth.Claims `json:"claims"`
}

func newUsersCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users in the configured store",
	}
	cmd.AddCommand(newUsersAddCmd(g))
	cmd.AddCommand(newUsersPasswdCmd(g))
	cmd.AddCommand(newUsersShowCmd(g))
	return cmd
}

func newUsersAddCmd(g *globals) *cobra.Command {
	var (
		id            string
		roles         []string
		claimFlags    []string
		noPassword    bool
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Add a user",
		Long: `Adds a user to the configured store. The password is prompted for on the
terminal unless --password-stdin or --no-password is given.

Claims are given as name=value. Values that parse as JSON keep their type:

  identity users add alice --role admin --claim team=blue --claim level=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if apiErr := server.ValidateRegister(&server.RegisterRequest{Username: username}, server.DefaultValidationConfig()); apiErr != nil {
				return errors.New(apiErr.Message)
			}

			data := auth.NewUserData(username)
			data.ID = auth.UserID(id)
			data.Roles = auth.NewRoles(roles...)
			claims, err := parseClaims(claimFlags)
			if err != nil {
				return err
			}
			data.Claims = claims

			var password *string
			if !noPassword {
				pw, err := readPasswordInput(g.in, g.errOut, passwordStdin)
				if err != nil {
					return err
				}
				password = &pw
			}

			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			newID, err := a.Users.AddUser(cmd.Context(), data, password)
			if errors.Is(err, users.ErrUsernameExists) {
				return fmt.Errorf("user %q already exists", username)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, newID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "User ID (generated when empty)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant (repeatable)")
	cmd.Flags().StringArrayVar(&claimFlags, "claim", nil, "Claim as name=value (repeatable)")
	cmd.Flags().BoolVar(&noPassword, "no-password", false, "Create the user without a password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("no-password", "password-stdin")
	return cmd
}

func newUsersPasswdCmd(g *globals) *cobra.Command {
	var (
		remove        bool
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "passwd USERNAME",
		Short: "Set or remove a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password *string
			if !remove {
				pw, err := readPasswordInput(g.in, g.errOut, passwordStdin)
				if err != nil {
					return err
				}
				password = &pw
			}

			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.Users.ChangePassword(cmd.Context(), args[0], password)
			if errors.Is(err, users.ErrUserNotFound) {
				return fmt.Errorf("user %q not found", args[0])
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the password so the user cannot log in with one")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("remove", "password-stdin")
	return cmd
}

func newUsersShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show USERNAME",
		Short: "Print a user's ID, roles and claims as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Users.FindByUsername(cmd.Context(), args[0])
			if errors.Is(err, users.ErrUserNotFound) {
				return fmt.Errorf("user %q not found", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(g.out, userView{
				ID:       p.ID(),
				Username: p.Username(),
				Roles:    p.Roles(),
				Claims:   p.Claims(),
			})
		},
	}
}
