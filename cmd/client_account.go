/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voxscribe/apiserver/types"
)

var (
	credEmail     string
	profileFirst  string
	profileLast   string
	profileEmail  string
	confirmDelete bool
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()

		email, password, err := readCredentials(cmd)
		if err != nil {
			return err
		}
		profile, err := c.SignUp(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s (role %s)\n", profile.Email, profile.Role)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and cache the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()

		email, password, err := readCredentials(cmd)
		if err != nil {
			return err
		}
		user, err := c.SignIn(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the cached session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if _, ok := c.Sessions().Latest(); !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			return nil
		}
		if err := c.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		user, err := c.CurrentUser(cmd.Context())
		if err != nil {
			return err
		}
		role := types.RoleUser
		if c.IsAdmin(cmd.Context()) {
			role = types.RoleAdmin
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"ID", "EMAIL", "ROLE", "SINCE"},
			[][]string{{user.ID, user.Email, string(role), when(user.CreatedAt)}},
			nil,
		))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		profile, err := c.GetProfile(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"FIRST NAME", "LAST NAME", "EMAIL", "ROLE", "UPDATED"},
			[][]string{{profile.FirstName, profile.LastName, profile.Email, string(profile.Role), when(profile.UpdatedAt)}},
			nil,
		))
		return nil
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change your name or email",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		var update types.ProfileUpdate
		flags := cmd.Flags()
		if flags.Changed("first-name") {
			update.FirstName = &profileFirst
		}
		if flags.Changed("last-name") {
			update.LastName = &profileLast
		}
		if flags.Changed("email") {
			update.Email = &profileEmail
		}
		if update == (types.ProfileUpdate{}) {
			return errors.New("nothing to update: pass --first-name, --last-name or --email")
		}

		profile, err := c.UpdateProfile(cmd.Context(), update)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile updated (%s)\n", profile.Email)
		return nil
	},
}

var profilePasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		out := cmd.ErrOrStderr()
		current, err := promptPassword(out, "Current password")
		if err != nil {
			return err
		}
		next, err := promptPassword(out, "New password")
		if err != nil {
			return err
		}
		confirm, err := promptPassword(out, "Repeat new password")
		if err != nil {
			return err
		}
		if next != confirm {
			return errors.New("passwords do not match")
		}

		if err := c.UpdatePassword(cmd.Context(), current, next); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete your account and all of its transcriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		if !confirmDelete {
			answer, err := promptLine(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(), "Type DELETE to confirm")
			if err != nil {
				return err
			}
			if answer != "DELETE" {
				return errors.New("aborted")
			}
		}
		if err := c.DeleteAccount(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Account deleted")
		return nil
	},
}

func init() {
	clientCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd, profileCmd)
	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd, profilePasswordCmd, profileDeleteCmd)

	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&credEmail, "email", "", "account email (prompted when empty)")
	}
	profileUpdateCmd.Flags().StringVar(&profileFirst, "first-name", "", "first name")
	profileUpdateCmd.Flags().StringVar(&profileLast, "last-name", "", "last name")
	profileUpdateCmd.Flags().StringVar(&profileEmail, "email", "", "new email")
	profileDeleteCmd.Flags().BoolVar(&confirmDelete, "yes", false, "skip the confirmation prompt")
}

func readCredentials(cmd *cobra.Command) (string, string, error) {
	email := strings.TrimSpace(credEmail)
	if email == "" {
		var err error
		email, err = promptLine(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(), "Email")
		if err != nil {
			return "", "", err
		}
	}
	password, err := promptPassword(cmd.ErrOrStderr(), "Password")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}
