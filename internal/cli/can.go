package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"consoleauth/internal/permission"
	pstrings "consoleauth/pkg/platform/strings"
)

// ErrDenied is returned by `can` when the check fails, so scripts can branch
// on the exit status.
var ErrDenied = errors.New("permission denied")

func newCanCommand(a *app) *cobra.Command {
	var (
		perms    []string
		roles    []string
		all      bool
		noBypass bool
	)
	cmd := &cobra.Command{
		Use:   "can",
		Short: "Check locally whether the signed-in user passes a permission check",
		Long: `Evaluate roles and permissions against the current session without
calling the backend. Exits non-zero on denial.

Roles always match on any. Permissions match on any unless --all is set.
SUPER_ADMIN passes every check unless --no-super-admin-bypass is set.

Examples:
  consoleauth can --perm user.read
  consoleauth can --perm user.read,user.update --all
  consoleauth can --role ADMIN --role AUDITOR`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Initialize(cmd.Context()); err != nil {
				return err
			}
			opts := permission.CheckOptions{
				Permissions: pstrings.DedupeAndTrim(perms),
				Roles:       pstrings.DedupeAndTrim(roles),
				RequireAll:  all,
			}
			if noBypass {
				opts.SkipSuperAdmin = permission.Bool(false)
			}

			res := permission.Evaluate(a.session.Snapshot(), opts)
			if !res.Allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "denied: %s\n", res.Reason)
				return ErrDenied
			}
			if res.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "allowed (%s)\n", res.Reason)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "allowed")
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "required permission codes")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "accepted role names")
	cmd.Flags().BoolVar(&all, "all", false, "require every permission instead of any")
	cmd.Flags().BoolVar(&noBypass, "no-super-admin-bypass", false, "evaluate SUPER_ADMIN like any other user")
	return cmd
}
