package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	keyrunes "github.com/keyrunes/keyrunes-go"
)

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username> <email>",
		Short: "Register a new user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			password, err := resolvePassword(cmd)
			if err != nil {
				return err
			}

			user, err := client.Register(cmd.Context(), keyrunes.RegisterRequest{
				Username: args[0],
				Email:    args[1],
				Password: password,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().String("password", "", "password for the new account (prompted when omitted)")
	return cmd
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations",
	}
	cmd.AddCommand(newAdminRegisterCmd())
	return cmd
}

func newAdminRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username> <email>",
		Short: "Register an administrator account",
		Long: `Registers an administrator. The provisioning key comes from --admin-key,
the ADMIN_KEY environment variable, or admin_key in the config file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adminKey := viper.GetString("admin_key")
			if adminKey == "" {
				return errors.New("no provisioning key: set --admin-key or ADMIN_KEY")
			}

			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			password, err := resolvePassword(cmd)
			if err != nil {
				return err
			}

			user, err := client.RegisterAdmin(cmd.Context(), keyrunes.AdminRegisterRequest{
				RegisterRequest: keyrunes.RegisterRequest{
					Username: args[0],
					Email:    args[1],
					Password: password,
				},
				AdminKey: adminKey,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered administrator %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().String("password", "", "password for the new account (prompted when omitted)")
	cmd.Flags().String("admin-key", "", "provisioning key for admin registration")
	_ = viper.BindPFlag("admin_key", cmd.Flags().Lookup("admin-key"))
	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <identity>",
		Short: "Log in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			password, err := resolvePassword(cmd)
			if err != nil {
				return err
			}

			token, err := client.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}

			if err := saveToken(token.AccessToken); err != nil {
				return fmt.Errorf("store session token: %w", err)
			}

			who := args[0]
			if token.User != nil {
				who = token.User.Username
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (token valid for %ds)\n", who, token.ExpiresIn)
			return nil
		},
	}
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := clearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user behind the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			user, err := client.CurrentUser(cmd.Context())
			if err != nil {
				if errors.Is(err, keyrunes.ErrUnauthenticated) {
					return errors.New("not logged in: run keyrunes login first")
				}
				return err
			}

			printUser(cmd, user)
			return nil
		},
	}
}

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups [user-id]",
		Short: "List group memberships",
		Long: `Lists the groups a user belongs to. Without an argument it reports on the
stored session's user.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			userID := ""
			if len(args) == 1 {
				userID = args[0]
			} else {
				claims := client.SessionClaims()
				if claims == nil {
					return errors.New("not logged in: run keyrunes login or pass a user id")
				}
				userID = claims.Subject
			}

			groups, err := client.UserGroups(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no group memberships")
				return nil
			}
			for _, g := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <group>",
		Short: "Check group membership",
		Long: `Checks whether a user belongs to a group and exits non-zero on denial.
Without --user it checks the stored session's user.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			userID, _ := cmd.Flags().GetString("user")
			if userID == "" {
				claims := client.SessionClaims()
				if claims == nil {
					return errors.New("not logged in: run keyrunes login or pass --user")
				}
				userID = claims.Subject
			}

			ok, err := client.HasGroup(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("denied: %s is not in %q", userID, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s is in %q\n", userID, args[0])
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id to check (default: session user)")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := sdkClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "service healthy")
			return nil
		},
	}
}

// resolvePassword takes the password from the flag or prompts for it.
// On a real terminal the prompt reads with echo off; piped stdin falls
// back to a plain line read so scripts keep working.
func resolvePassword(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password != "" {
		return password, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")

	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

func printUser(cmd *cobra.Command, user *keyrunes.User) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", user.ID)
	fmt.Fprintf(w, "Username:\t%s\n", user.Username)
	fmt.Fprintf(w, "Email:\t%s\n", user.Email)
	fmt.Fprintf(w, "Groups:\t%s\n", strings.Join(user.Groups, ", "))
	fmt.Fprintf(w, "Active:\t%t\n", user.IsActive)
	fmt.Fprintf(w, "Admin:\t%t\n", user.IsAdmin)
	_ = w.Flush()
}
