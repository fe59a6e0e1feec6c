// Package cli contains the administrative subcommands of the gatehouse
// binary.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"

	"github.com/gatehouse-io/gatehouse/internal/acl"
	"github.com/gatehouse-io/gatehouse/internal/app"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/db"
	"github.com/gatehouse-io/gatehouse/internal/principal"
	"github.com/gatehouse-io/gatehouse/internal/resource"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RunBootstrap provisions the schema, the sentinel principals, and an
// initial administrator account. The command is idempotent: re-running it
// against an initialized database only reconciles what is missing.
func RunBootstrap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	username := fs.String("username", "", "username for the initial administrator")
	password := fs.String("password", "", "password for the initial administrator")
	name := fs.String("name", "Administrator", "display name for the initial administrator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("bootstrap requires -username and -password")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	registry := resource.NewRegistry()
	if err := principal.EnsureSentinels(ctx, pool, registry); err != nil {
		return fmt.Errorf("ensure sentinels: %w", err)
	}

	principalRepo := principal.NewRepository(pool, registry)
	principalService := principal.NewService(principalRepo)

	admin, err := principalService.GetUserByUsername(ctx, *username)
	switch {
	case err == nil:
		logger.Info("administrator already exists", slog.Int64("user_id", admin.ID))
	case errors.Is(err, shared.ErrNotFound):
		admin, err = principalService.CreateUser(ctx, *username, *name)
		if err != nil {
			return fmt.Errorf("create administrator: %w", err)
		}
		logger.Info("administrator created", slog.Int64("user_id", admin.ID))
	default:
		return err
	}

	authService := auth.NewService(auth.NewRepository(pool), nil, logger, cfg.AppBaseURL, cfg.ResetTokenTTL)
	if err := authService.SetPassword(ctx, admin.ID, *password); err != nil {
		return fmt.Errorf("set administrator password: %w", err)
	}

	if err := principalService.AddMembership(ctx, admin.ID, principal.SuperUsersID); err != nil {
		return fmt.Errorf("add administrator to super users: %w", err)
	}

	aclService := acl.NewService(acl.NewStore(pool), nil)
	if err := aclService.Grant(ctx, principal.SuperUsers, acl.AllKinds(), principal.SuperUsersResourceKey); err != nil {
		return fmt.Errorf("grant super users administration: %w", err)
	}

	logger.Info("bootstrap complete", slog.String("username", *username))
	return nil
}
