package principal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/resource"
)

// EnsureSentinels creates the reserved principals and their guarding
// resources. All statements are idempotent; bootstrap may run on every
// deployment.
func EnsureSentinels(ctx context.Context, pool *pgxpool.Pool, registry *resource.Registry) error {
	for _, key := range []string{AnyUserResourceKey, SuperUsersResourceKey} {
		if err := registry.Register(ctx, pool, key); err != nil {
			return err
		}
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO users (id, name) VALUES ($1, 'any user') ON CONFLICT DO NOTHING`,
		AnyUserID); err != nil {
		return fmt.Errorf("principal: ensure any-user sentinel: %w", err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO groups (id, name, resource_key) VALUES ($1, 'super users', $2) ON CONFLICT DO NOTHING`,
		SuperUsersID, SuperUsersResourceKey); err != nil {
		return fmt.Errorf("principal: ensure super-users sentinel: %w", err)
	}

	return nil
}

// ValidateSentinels verifies the sentinel rows exist. The server refuses to
// authorize anything until bootstrap has run, since resolver queries bind the
// any-user identity unconditionally.
func ValidateSentinels(ctx context.Context, pool *pgxpool.Pool) error {
	var userOK, groupOK bool
	err := pool.QueryRow(ctx, `SELECT
		EXISTS (SELECT 1 FROM users WHERE id = $1),
		EXISTS (SELECT 1 FROM groups WHERE id = $2)`,
		AnyUserID, SuperUsersID).Scan(&userOK, &groupOK)
	if err != nil {
		return fmt.Errorf("principal: validate sentinels: %w", err)
	}
	if !userOK || !groupOK {
		return fmt.Errorf("principal: sentinel principals missing, run `gatehouse bootstrap`")
	}
	return nil
}
