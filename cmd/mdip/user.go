package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"mdip/core/appbootstrap"
	"mdip/core/auth"
	"mdip/core/store"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	userRole     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account (prompts for the password)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := userPassword
		if password == "" {
			var err error
			if password, err = promptPassword("Password: "); err != nil {
				return err
			}
			confirm, err := promptPassword("Repeat password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return fmt.Errorf("passwords do not match")
			}
		}
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			id, err := rt.Auth.Register(ctx, auth.SystemActor(), args[0], password, userRole)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d\n", id)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			users, err := rt.Auth.ListUsers(ctx, auth.SystemActor())
			if err != nil {
				return err
			}
			printUsers(cmd, users)
			return nil
		})
	},
}

var userSetRoleCmd = &cobra.Command{
	Use:   "set-role <id> <role>",
	Short: "Change an account's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			return rt.Auth.SetRole(ctx, auth.SystemActor(), id, args[1])
		})
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			return rt.Auth.DeleteUser(ctx, auth.SystemActor(), id)
		})
	},
}

var userUnlockCmd = &cobra.Command{
	Use:   "unlock <id>",
	Short: "Clear a lockout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			return rt.Auth.UnlockUser(ctx, auth.SystemActor(), id)
		})
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", string(auth.RoleUser), "role: user, admin, editor or analyst")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "password (prompted when empty)")
	userCmd.AddCommand(userAddCmd, userListCmd, userSetRoleCmd, userDeleteCmd, userUnlockCmd)
}

func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *appbootstrap.Runtime) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	rt, err := appbootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func printUsers(cmd *cobra.Command, users []store.User) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tCREATED\tTOTP")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\n", u.ID, u.Username, u.Role, u.CreatedAt.Format(time.RFC3339), u.TOTPEnabled)
	}
	_ = tw.Flush()
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
