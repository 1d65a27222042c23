package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dimitrije/reclama-api/internal/config"
	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:      "grant-admin",
		Usage:     "Grant the admin role to an existing account",
		ArgsUsage: "<email>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "check", Usage: "only report whether the account is an administrator"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			email := c.Args().First()
			if email == "" {
				return cli.Exit("an email is required", 1)
			}
			return run(ctx, email, c.Bool("check"))
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, email string, checkOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New("grant-admin", cfg.LogLevel)

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	users := services.NewUserService(db)
	roles := services.NewRoleService(db, log)

	if checkOnly {
		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		isAdmin, err := roles.IsAdmin(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s admin=%t\n", email, isAdmin)
		return nil
	}

	// uuid.Nil records the grant as made by the operator.
	assignment, err := roles.GrantAdminByEmail(ctx, email, uuid.Nil)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		return fmt.Errorf("no user found with email: %s", email)
	case errors.Is(err, services.ErrRoleAlreadyGranted):
		fmt.Printf("%s is already an administrator\n", email)
		return nil
	case err != nil:
		return fmt.Errorf("failed to grant admin role: %w", err)
	}

	fmt.Printf("Successfully granted admin to %s (user %s)\n", email, assignment.UserID)
	return nil
}
