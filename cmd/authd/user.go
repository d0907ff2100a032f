package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	auth "github.com/goliatone/go-auth-server"
)

// readPassword is replaced in tests.
var readPassword = term.ReadPassword

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserCreateCmd(), newUserListCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		fullName string
		roles    []string
		stdin    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account, prompting for the password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), stdin)
			if err != nil {
				return err
			}

			ctx := contextOf(cmd)
			app, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			outcome, err := app.controller.Registration.Register(ctx, auth.RegistrationCandidate{
				Email:    email,
				FullName: fullName,
				UserName: username,
				Password: password,
			})
			if err != nil {
				return err
			}
			if !outcome.Flag {
				return errors.New(outcome.Message)
			}

			users := app.repo.Users()
			account, err := users.FindByEmail(ctx, email)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if err := users.AddToRole(ctx, account, role); err != nil {
					return fmt.Errorf("add role %s: %w", role, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", account.ID, account.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&fullName, "full-name", "", "account full name")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleUser}, "roles to grant, repeatable")
	cmd.Flags().BoolVar(&stdin, "password-stdin", false, "read the password from stdin")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := contextOf(cmd)
			app, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			users, err := app.controller.Directory.ListUsers(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", u.ID, u.UserName, u.Email, strings.Join(u.Roles, ","))
			}
			return nil
		},
	}
}

// promptPassword reads the password without echo from the terminal, or
// the first line of in when fromStdin is set.
func promptPassword(in io.Reader, w io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		line, _, _ := bytes.Cut(data, []byte("\n"))
		return strings.TrimRight(string(line), "\r"), nil
	}

	fmt.Fprint(w, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
