package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"consoleauth/internal/session/models"
)

func newTwoFactorCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Start two-factor enrolment and print the secret",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			setup, err := a.session.EnableTwoFactor(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Secret: %s\n", setup.Secret)
			if setup.OTPAuthURL != "" {
				fmt.Fprintf(out, "URL:    %s\n", setup.OTPAuthURL)
			}
			for _, code := range setup.BackupCodes {
				fmt.Fprintf(out, "Backup: %s\n", code)
			}
			fmt.Fprintln(out, "Confirm with `consoleauth 2fa verify <code>`.")
			return nil
		}),
	}

	verify := &cobra.Command{
		Use:   "verify <code>",
		Short: "Confirm enrolment with a code from the authenticator",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			if err := a.session.VerifyTwoFactor(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Two-factor authentication enabled.")
			return nil
		}),
	}

	disable := &cobra.Command{
		Use:   "disable <code>",
		Short: "Turn two-factor authentication off",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			if err := a.session.DisableTwoFactor(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Two-factor authentication disabled.")
			return nil
		}),
	}

	cmd.AddCommand(enable, verify, disable)
	return cmd
}

func newPasswordCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change or reset the account password",
	}

	var change models.PasswordChange
	changeCmd := &cobra.Command{
		Use:   "change",
		Short: "Change the signed-in user's password",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			prompt := newPrompter(a.in, cmd.OutOrStdout())
			if change.CurrentPassword == "" {
				change.CurrentPassword = prompt.ask("Current password: ")
			}
			if change.NewPassword == "" {
				change.NewPassword = prompt.ask("New password: ")
			}
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			if err := a.session.ChangePassword(ctx, change); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		}),
	}
	changeCmd.Flags().StringVar(&change.CurrentPassword, "current", "", "current password (prompted when empty)")
	changeCmd.Flags().StringVar(&change.NewPassword, "new", "", "new password (prompted when empty)")

	var target string
	sendCode := &cobra.Command{
		Use:   "send-code",
		Short: "Send a reset code to the account's email or phone",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.session.SendCode(cmd.Context(), models.CodeRequest{Target: target, Purpose: "reset_password"}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Code sent to %s.\n", target)
			return nil
		}),
	}
	sendCode.Flags().StringVar(&target, "to", "", "email or phone number")
	_ = sendCode.MarkFlagRequired("to")

	var reset models.PasswordReset
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with a reset code",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if reset.NewPassword == "" {
				reset.NewPassword = newPrompter(a.in, cmd.OutOrStdout()).ask("New password: ")
			}
			if err := a.session.ResetPassword(cmd.Context(), reset); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset. You can log in now.")
			return nil
		}),
	}
	resetCmd.Flags().StringVar(&reset.Target, "to", "", "email or phone number the code was sent to")
	resetCmd.Flags().StringVar(&reset.Code, "code", "", "reset code")
	resetCmd.Flags().StringVar(&reset.NewPassword, "new", "", "new password (prompted when empty)")
	_ = resetCmd.MarkFlagRequired("to")
	_ = resetCmd.MarkFlagRequired("code")

	cmd.AddCommand(changeCmd, sendCode, resetCmd)
	return cmd
}

func newProfileCommand(a *app) *cobra.Command {
	var email, firstName, lastName, phone string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the signed-in user's profile",
		Long: `Update profile fields. Only flags that are passed are sent.

Examples:
  consoleauth profile --email alice@example.com
  consoleauth profile --first-name Alice --last-name Liddell`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var patch models.ProfilePatch
			flags := cmd.Flags()
			if flags.Changed("email") {
				patch.Email = &email
			}
			if flags.Changed("first-name") {
				patch.FirstName = &firstName
			}
			if flags.Changed("last-name") {
				patch.LastName = &lastName
			}
			if flags.Changed("phone") {
				patch.Phone = &phone
			}
			if patch == (models.ProfilePatch{}) {
				return fmt.Errorf("nothing to update")
			}
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			user, err := a.session.UpdateProfile(ctx, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile updated for %s.\n", user.DisplayName())
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}

func newRegisterCommand(a *app) *cobra.Command {
	var reg models.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account on the backend. Log in afterwards with ` + "`consoleauth login`" + `.

Examples:
  consoleauth register --username alice --email alice@example.com`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if reg.Password == "" {
				reg.Password = newPrompter(a.in, cmd.OutOrStdout()).ask("Password: ")
			}
			user, err := a.session.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run `consoleauth login -u %s` to sign in.\n", user.Username, user.Username)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reg.Username, "username", "", "username")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&reg.VerificationCode, "code", "", "verification code, when the backend requires one")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
