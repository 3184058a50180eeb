package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.pilab.hu/fence/users"
	"gopkg.in/yaml.v3"
)

func newUsersCmd(a *app) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:     "users",
		Short:   "Manage users",
		Aliases: []string{"user"},
	}

	usersCmd.AddCommand(newUsersDeleteCmd(a), newUsersCreateCmd(a), newUsersListCmd(a))

	return usersCmd
}

// withUsers runs fn against a user service on the configured backend.
func (a *app) withUsers(cmd *cobra.Command, fn func(svc *users.Service) error) error {
	stores, err := a.persistentStores(cmd.Context())
	if err != nil {
		return err
	}
	defer stores.Close(cmd.Context())

	return fn(users.NewService(stores.Users, a.logger))
}

func newUsersDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete USERNAME [USERNAME...]",
		Short: "Delete the named users and nothing else",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(svc *users.Service) error {
				res, err := svc.DeleteUsers(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printYAML(cmd, res)
			})
		},
	}
}

func newUsersCreateCmd(a *app) *cobra.Command {
	var email string

	createCmd := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(svc *users.Service) error {
				user, err := svc.CreateUser(cmd.Context(), args[0], email)
				if err != nil {
					return fmt.Errorf("user creation failed: %w", err)
				}
				return printYAML(cmd, user)
			})
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "email address of the user")

	return createCmd
}

func newUsersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withUsers(cmd, func(svc *users.Service) error {
				list, err := svc.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				return printYAML(cmd, list)
			})
		},
	}
}

func printYAML(cmd *cobra.Command, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
