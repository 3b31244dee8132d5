/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/voxscribe/apiserver/internal/client"
	"github.com/voxscribe/apiserver/types"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands (admin role required)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return explainDenied(c.RequireAdmin(cmd.Context()))
	},
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List every profile",
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		users, err := c.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(users))
		for _, p := range users {
			rows = append(rows, []string{p.ID, p.Email, p.FirstName + " " + p.LastName, string(p.Role), when(p.CreatedAt)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "EMAIL", "NAME", "ROLE", "JOINED"}, rows, nil))
		return nil
	}),
}

var adminTranscriptionsCmd = &cobra.Command{
	Use:   "transcriptions",
	Short: "List every transcription with its owner",
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		items, err := c.ListAllTranscriptions(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(items))
		for _, t := range items {
			rows = append(rows, []string{t.ID, t.OwnerEmail, filepath.Base(t.AudioPath), truncate(t.TextContent, 40), when(t.CreatedAt)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "OWNER", "AUDIO", "TEXT", "CREATED"}, rows, nil))
		return nil
	}),
}

var adminRoleCmd = &cobra.Command{
	Use:   "role <user-id> <user|admin>",
	Short: "Set a user's role",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		profile, err := c.SetUserRole(cmd.Context(), args[0], types.Role(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", profile.Email, profile.Role)
		return nil
	}),
}

var adminToggleCmd = &cobra.Command{
	Use:   "toggle <user-id>",
	Short: "Flip a user between user and admin",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		profile, err := c.ToggleUserRole(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", profile.Email, profile.Role)
		return nil
	}),
}

var adminDeleteUserCmd = &cobra.Command{
	Use:   "delete-user <user-id>",
	Short: "Delete a user's transcriptions and profile",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		if err := c.DeleteUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
		return nil
	}),
}

var adminDeleteTranscriptionCmd = &cobra.Command{
	Use:   "delete-transcription <id>",
	Short: "Delete any transcription",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		if err := c.AdminDeleteTranscription(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	}),
}

func init() {
	clientCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(
		adminUsersCmd,
		adminTranscriptionsCmd,
		adminRoleCmd,
		adminToggleCmd,
		adminDeleteUserCmd,
		adminDeleteTranscriptionCmd,
	)
}

func withClient(fn func(cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd, c, args)
	}
}
