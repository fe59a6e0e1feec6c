// Package resource owns the mapping from resource keys to protected entities.
//
// A resource row must exist before any grant referencing its key is accepted,
// and every protected entity row carries exactly one immutable resource key.
// Provision enforces both directions inside the caller's transaction: the
// entity insert, the key computation, the resource insert, and the key
// write-back either all commit or all roll back.
package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Querier is the subset of pgx operations the registry needs. Both pgx.Tx and
// *pgxpool.Pool satisfy it; callers choose the scope. Provision requires a
// transaction-scoped Querier.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Key derives the resource key for an entity. Keys are assigned once and never
// change.
func Key(entityKind string, entityID int64) string {
	return fmt.Sprintf("%s-%d", entityKind, entityID)
}

// Registry provisions and retires resource keys.
type Registry struct{}

// NewRegistry constructs a Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Provision allocates the resource key for a freshly inserted entity row and
// writes it back onto that row. entityKind must equal the entity's table name;
// it is quoted as an identifier, never interpolated raw. The caller runs this
// inside the same transaction as the entity insert, so a failure at any step
// leaves no entity without a resource row and no resource row without an
// entity.
//
// A key collision means two entities of one kind share an id, which the
// store's primary key makes impossible unless provisioning is invoked twice
// for one entity. That is an invariant violation, reported as a provisioning
// failure rather than recovered from.
func (g *Registry) Provision(ctx context.Context, q Querier, entityKind string, entityID int64) (string, error) {
	key := Key(entityKind, entityID)

	tag, err := q.Exec(ctx, `INSERT INTO resources (key) VALUES ($1) ON CONFLICT DO NOTHING`, key)
	if err != nil {
		return "", fmt.Errorf("%w: insert key %q: %v", shared.ErrProvisioning, key, err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: key %q already registered", shared.ErrProvisioning, key)
	}

	table := pgx.Identifier{entityKind}.Sanitize()
	tag, err = q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET resource_key = $1 WHERE id = $2`, table), key, entityID)
	if err != nil {
		return "", fmt.Errorf("%w: attach key %q: %v", shared.ErrProvisioning, key, err)
	}
	if tag.RowsAffected() != 1 {
		return "", fmt.Errorf("%w: entity %s/%d not found for key attachment", shared.ErrProvisioning, entityKind, entityID)
	}

	return key, nil
}

// Retire deletes the resource row. Foreign keys cascade the delete to every
// grant referencing the key.
func (g *Registry) Retire(ctx context.Context, q Querier, key string) error {
	if _, err := q.Exec(ctx, `DELETE FROM resources WHERE key = $1`, key); err != nil {
		return fmt.Errorf("resource: retire %q: %w", key, err)
	}
	return nil
}

// Exists reports whether the key is registered.
func (g *Registry) Exists(ctx context.Context, q Querier, key string) (bool, error) {
	var found bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM resources WHERE key = $1)`, key).Scan(&found)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("resource: exists %q: %w", key, err)
	}
	return found, nil
}

// Register inserts the given key without an owning entity row. Only the
// bootstrap path uses this, for the sentinel principals whose resources are
// not derived from a table row.
func (g *Registry) Register(ctx context.Context, q Querier, key string) error {
	if _, err := q.Exec(ctx, `INSERT INTO resources (key) VALUES ($1) ON CONFLICT DO NOTHING`, key); err != nil {
		return fmt.Errorf("resource: register %q: %w", key, err)
	}
	return nil
}
