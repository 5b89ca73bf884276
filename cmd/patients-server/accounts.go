package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return withApp(func(ctx context.Context, a *app, _ zerolog.Logger) error {
				role, err := a.Accounts.AddNewRole(ctx, name)
				if err != nil {
					return err
				}
				fmt.Printf("Role %s created.\n", role.Name)
				return nil
			})
		},
	}
	addCmd.Flags().String("name", "", "Role name, e.g. ADMIN")
	cmd.AddCommand(addCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their roles",
	}

	// user add
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			confirm, _ := cmd.Flags().GetString("confirm")
			email, _ := cmd.Flags().GetString("email")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			if !cmd.Flags().Changed("confirm") {
				confirm = password
			}
			return withApp(func(ctx context.Context, a *app, _ zerolog.Logger) error {
				user, err := a.Accounts.AddNewUser(ctx, username, password, confirm, email)
				if err != nil {
					return err
				}
				fmt.Printf("User %s created (id %s).\n", user.Username, user.ID)
				return nil
			})
		},
	}
	addCmd.Flags().String("username", "", "Login name")
	addCmd.Flags().String("password", "", "Password")
	addCmd.Flags().String("confirm", "", "Password confirmation (defaults to --password)")
	addCmd.Flags().String("email", "", "Email address")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(roleChangeCmd("grant", "Grant a role to a user", func(ctx context.Context, a *app, username, role string) error {
		return a.Accounts.AddRoleToUser(ctx, username, role)
	}))
	cmd.AddCommand(roleChangeCmd("revoke", "Revoke a role from a user", func(ctx context.Context, a *app, username, role string) error {
		return a.Accounts.RemoveRoleFromUser(ctx, username, role)
	}))

	// user list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			return withApp(func(ctx context.Context, a *app, _ zerolog.Logger) error {
				users, total, err := a.Accounts.ListUsers(ctx, limit, offset)
				if err != nil {
					return err
				}
				fmt.Printf("%-36s %-20s %-30s %s\n", "ID", "USERNAME", "EMAIL", "ROLES")
				for _, u := range users {
					fmt.Printf("%-36s %-20s %-30s %s\n", u.ID, u.Username, u.Email, strings.Join(u.Roles, ","))
				}
				fmt.Printf("%d of %d user(s).\n", len(users), total)
				return nil
			})
		},
	}
	listCmd.Flags().Int("limit", 50, "Maximum users to show")
	listCmd.Flags().Int("offset", 0, "Users to skip")
	cmd.AddCommand(listCmd)

	return cmd
}

func roleChangeCmd(use, short string, apply func(ctx context.Context, a *app, username, role string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			role, _ := cmd.Flags().GetString("role")
			if username == "" || role == "" {
				return fmt.Errorf("--username and --role are required")
			}
			return withApp(func(ctx context.Context, a *app, _ zerolog.Logger) error {
				if err := apply(ctx, a, username, role); err != nil {
					return err
				}
				fmt.Printf("%s %s: %s done.\n", username, role, use)
				return nil
			})
		},
	}
	cmd.Flags().String("username", "", "Login name")
	cmd.Flags().String("role", "", "Role name")
	return cmd
}
