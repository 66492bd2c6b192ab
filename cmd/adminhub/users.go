package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"adminhub/internal/auth"
	"adminhub/internal/db"
	"adminhub/internal/service"
)

var newUser service.CreateUserInput

func init() {
	usersCreateCmd.Flags().StringVar(&newUser.Username, "username", "", "login name (required)")
	usersCreateCmd.Flags().StringVar(&newUser.Name, "name", "", "display name")
	usersCreateCmd.Flags().StringVar(&newUser.Email, "email", "", "email address")
	usersCreateCmd.Flags().StringVar(&newUser.Group, "group", "admin", "permission group")
	usersCreateCmd.Flags().StringVar(&newUser.Password, "password", "", `password, or "-" to read it from stdin (required)`)
	_ = usersCreateCmd.MarkFlagRequired("username")
	_ = usersCreateCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersCreateCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage portal users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a portal user",
	Long: `Create a portal user in a permission group.

Examples:
  adminhub users create --username ann --name "Ann Lee" --group editor --password -`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if newUser.Password == "-" {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password from stdin: %w", err)
			}
			newUser.Password = strings.TrimRight(line, "\r\n")
		}

		pool, err := db.NewPool(cmd.Context(), cfg.Postgres.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		tokens := auth.NewJWTConfig(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clock.WallClock)
		accounts := service.NewAccountService(pool.Accounts, tokens, cfg.Auth.LockAfter, logger)
		user, err := accounts.CreateUser(cmd.Context(), newUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) in group %q\n", user.Username, user.ID, user.Access)
		return nil
	},
}
