package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/themeshop/internal/store"
)

func usersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts and manage admin access",
	}
	cmd.AddCommand(usersListCmd(a))
	cmd.AddCommand(usersSetAdminCmd(a))
	return cmd
}

func usersListCmd(a *app) *cobra.Command {
	var adminsOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := store.NewUserStore(a.db).List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tPREMIUM\tADMIN\tCREATED")
			for _, u := range users {
				if adminsOnly && !u.IsAdmin {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%s\n",
					u.ID, u.Email, u.Name, u.IsPremium, u.IsAdmin, u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&adminsOnly, "admins", false, "only show admin accounts")
	return cmd
}

func usersSetAdminCmd(a *app) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "set-admin <email>",
		Short: "Grant or revoke admin access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users := store.NewUserStore(a.db)
			u, err := users.GetByEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("user %s: %w", args[0], store.ErrNotFound)
			}
			if err := users.SetAdmin(cmd.Context(), u.ID, !revoke); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s admin=%t\n", u.Email, !revoke)
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove admin access instead of granting it")
	return cmd
}
