package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/bootstrap"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// environment supplies the commands with their backing resources.
type environment struct {
	open    func(ctx context.Context) (*bootstrap.Runtime, error)
	migrate func(ctx context.Context) (int, error)
}

func newRootCmd(env environment) *cobra.Command {
	root := &cobra.Command{
		Use:           "helpdeskctl",
		Short:         "Administer the helpdesk assignment service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(env), newFetchCmd(env), newStaffCmd(env))
	return root
}

func withRuntime(env environment, fn func(cmd *cobra.Command, rt *bootstrap.Runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := env.open(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(cmd, rt, args)
	}
}

func newMigrateCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := env.migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func newFetchCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch unseen mail once and assign it",
		Args:  cobra.NoArgs,
		RunE: withRuntime(env, func(cmd *cobra.Command, rt *bootstrap.Runtime, _ []string) error {
			if rt.Poller == nil {
				return fmt.Errorf("mailbox ingestion is not configured")
			}
			result, err := rt.Poller.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d assigned=%d duplicates=%d deferred=%d skipped=%d\n",
				result.Fetched, result.Assigned, result.Duplicates, result.Deferred, result.Skipped)
			return nil
		}),
	}
}

func newStaffCmd(env environment) *cobra.Command {
	staff := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff accounts",
	}
	staff.AddCommand(newStaffAddCmd(env), newStaffDeactivateCmd(env), newStaffReactivateCmd(env), newStaffAssignableCmd(env))
	return staff
}

func newStaffAddCmd(env environment) *cobra.Command {
	var input service.StaffCreateInput
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a staff account",
		Args:  cobra.NoArgs,
		RunE: withRuntime(env, func(cmd *cobra.Command, rt *bootstrap.Runtime, _ []string) error {
			input.Role = domain.StaffRole(strings.ToLower(role))
			member, err := rt.Staff.CreateStaff(cmd.Context(), nil, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", member.Email, member.Role, member.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&input.Email, "email", "", "login email")
	cmd.Flags().StringVar(&input.Name, "name", "", "display name")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", string(domain.StaffRoleStaff), "staff or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newStaffDeactivateCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <email>",
		Short: "Deactivate a staff member and release their open tickets",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(env, func(cmd *cobra.Command, rt *bootstrap.Runtime, args []string) error {
			if err := rt.Staff.Deactivate(cmd.Context(), nil, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", strings.ToLower(strings.TrimSpace(args[0])))
			return nil
		}),
	}
}

func newStaffReactivateCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <email>",
		Short: "Return a deactivated staff member to the rotation",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(env, func(cmd *cobra.Command, rt *bootstrap.Runtime, args []string) error {
			member, err := rt.Staff.Reactivate(cmd.Context(), nil, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reactivated %s\n", member.Email)
			return nil
		}),
	}
}

func newStaffAssignableCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "assignable",
		Short: "List staff eligible for the next automatic assignment, in rotation order",
		Args:  cobra.NoArgs,
		RunE: withRuntime(env, func(cmd *cobra.Command, rt *bootstrap.Runtime, _ []string) error {
			emails, err := rt.Staff.ListAssignable(cmd.Context())
			if err != nil {
				return err
			}
			for _, email := range emails {
				fmt.Fprintln(cmd.OutOrStdout(), email)
			}
			return nil
		}),
	}
}
