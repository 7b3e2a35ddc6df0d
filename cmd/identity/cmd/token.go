package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/identity/pkg/users"
)

func newTokenCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(g))
	return cmd
}

func newTokenIssueCmd(g *globals) *cobra.Command {
	var claimFlags []string

	cmd := &cobra.Command{
		Use:   "issue USERNAME",
		Short: "Issue a bearer token for a stored user",
		Long: `Signs a bearer token for USERNAME with the configured JWT secret. The user's
roles and claims are copied into the token; --claim adds or overrides claims.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseClaims(claimFlags)
			if err != nil {
				return err
			}

			a, err := g.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Issuer == nil {
				return errors.New("no JWT secret configured (auth.jwt.secret)")
			}

			p, err := a.Users.FindByUsername(cmd.Context(), args[0])
			if errors.Is(err, users.ErrUserNotFound) {
				return fmt.Errorf("user %q not found", args[0])
			}
			if err != nil {
				return err
			}

			token, err := a.Issuer.IssueToken(p, extra.Map())
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, token)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&claimFlags, "claim", nil, "Extra claim as name=value (repeatable)")
	return cmd
}
