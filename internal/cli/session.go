package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"consoleauth/internal/session"
	"consoleauth/internal/session/models"
	"consoleauth/internal/session/token"
)

func newLoginCommand(a *app) *cobra.Command {
	var creds models.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Exchange credentials for a token pair and store it.

Missing values are read from standard input, one per line.

Examples:
  consoleauth login -u alice
  consoleauth login -u alice -p secret --code 123456`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			prompt := newPrompter(a.in, cmd.OutOrStdout())
			if creds.Username == "" {
				creds.Username = prompt.ask("Username: ")
			}
			if creds.Password == "" {
				creds.Password = prompt.ask("Password: ")
			}
			if creds.Username == "" || creds.Password == "" {
				return fmt.Errorf("username and password are required")
			}

			if err := a.session.Login(cmd.Context(), creds); err != nil {
				return err
			}
			snap := a.session.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", snap.User.DisplayName())
			if names := snap.RoleNames(); len(names) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Roles: %s\n", strings.Join(names, ", "))
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&creds.TwoFactorCode, "code", "", "two-factor code")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		}),
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is active and when its tokens expire",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Initialize(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			snap := a.session.Snapshot()
			if !snap.IsAuthenticated {
				fmt.Fprintln(out, "Not logged in.")
				if snap.Error != "" {
					fmt.Fprintf(out, "Last error: %s\n", snap.Error)
				}
				return nil
			}
			fmt.Fprintf(out, "Logged in as %s (%s)\n", snap.User.DisplayName(), snap.User.ID)
			fmt.Fprintf(out, "Access token:  %s\n", describeExpiry(snap.AccessToken))
			fmt.Fprintf(out, "Refresh token: %s\n", describeExpiry(snap.RefreshToken))
			return nil
		}),
	}
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token now",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			if !a.session.Snapshot().IsAuthenticated {
				return session.ErrNotAuthenticated
			}
			access, err := a.session.Refresh(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Access token refreshed, %s\n", describeExpiry(access))
			return nil
		}),
	}
}

type whoami struct {
	User        *models.User `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
}

func newWhoamiCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user with roles and permissions",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Initialize(cmd.Context()); err != nil {
				return err
			}
			snap := a.session.Snapshot()
			if !snap.IsAuthenticated {
				return session.ErrNotAuthenticated
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(whoami{User: snap.User, Roles: snap.RoleNames(), Permissions: snap.Permissions})
			}
			fmt.Fprintf(out, "User:        %s\n", snap.User.Username)
			if snap.User.Email != "" {
				fmt.Fprintf(out, "Email:       %s\n", snap.User.Email)
			}
			fmt.Fprintf(out, "Roles:       %s\n", listOrNone(snap.RoleNames()))
			fmt.Fprintf(out, "Permissions: %s\n", listOrNone(snap.Permissions))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func describeExpiry(tok string) string {
	exp, ok := token.ExpiresAt(tok)
	if !ok {
		return "no expiry"
	}
	remaining := time.Duration(token.RemainingSeconds(tok)) * time.Second
	if remaining <= 0 {
		return "expired at " + exp.Format(time.RFC3339)
	}
	return fmt.Sprintf("expires in %s (%s)", remaining, exp.Format(time.RFC3339))
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

// prompter reads answers line by line from the command's input.
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	if in == nil {
		in = strings.NewReader("")
	}
	return &prompter{scanner: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(question string) string {
	fmt.Fprint(p.out, question)
	if !p.scanner.Scan() {
		fmt.Fprintln(p.out)
		return ""
	}
	return strings.TrimSpace(p.scanner.Text())
}
