package acl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/principal"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Store defines persistence for grant tuples and the resolution queries over
// them. The any-user channel is baked into the resolution queries: every
// lookup binds both the caller's identity and the any-user sentinel, for the
// direct and the membership channel alike.
type Store interface {
	InsertUserGrants(ctx context.Context, userID int64, resourceKey string, kinds []Kind) error
	InsertGroupGrants(ctx context.Context, groupID int64, resourceKey string, kinds []Kind) error
	DeleteUserGrants(ctx context.Context, userID int64, resourceKey string, kinds []Kind) error
	DeleteGroupGrants(ctx context.Context, groupID int64, resourceKey string, kinds []Kind) error

	Permissions(ctx context.Context, userID int64, resourceKey string) ([]Kind, error)
	HasPermission(ctx context.Context, userID int64, resourceKey string, kind Kind) (bool, error)
	AllPermissions(ctx context.Context, userID int64) ([]ResourceGrant, error)

	UserExists(ctx context.Context, userID int64) (bool, error)
	ResourceExists(ctx context.Context, resourceKey string) (bool, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL grant store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

// InsertUserGrants writes one tuple per kind into the user-grant relation.
// Duplicates of existing tuples are no-ops under the unique triple.
func (s *PGStore) InsertUserGrants(ctx context.Context, userID int64, resourceKey string, kinds []Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_grants (user_id, resource_key, kind)
		 SELECT $1, $2, unnest($3::permission_kind[])
		 ON CONFLICT DO NOTHING`,
		userID, resourceKey, kindStrings(kinds))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: user %d or resource %q not registered", shared.ErrInvalidArgument, userID, resourceKey)
		}
		return fmt.Errorf("acl: insert user grants: %w", err)
	}
	return nil
}

// InsertGroupGrants writes one tuple per kind into the group-grant relation.
func (s *PGStore) InsertGroupGrants(ctx context.Context, groupID int64, resourceKey string, kinds []Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_grants (group_id, resource_key, kind)
		 SELECT $1, $2, unnest($3::permission_kind[])
		 ON CONFLICT DO NOTHING`,
		groupID, resourceKey, kindStrings(kinds))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: group %d or resource %q not registered", shared.ErrInvalidArgument, groupID, resourceKey)
		}
		return fmt.Errorf("acl: insert group grants: %w", err)
	}
	return nil
}

// DeleteUserGrants removes matching tuples; absent tuples are a no-op.
func (s *PGStore) DeleteUserGrants(ctx context.Context, userID int64, resourceKey string, kinds []Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_grants
		 WHERE user_id = $1 AND resource_key = $2 AND kind = ANY ($3::permission_kind[])`,
		userID, resourceKey, kindStrings(kinds))
	if err != nil {
		return fmt.Errorf("acl: delete user grants: %w", err)
	}
	return nil
}

// DeleteGroupGrants removes matching tuples; absent tuples are a no-op.
func (s *PGStore) DeleteGroupGrants(ctx context.Context, groupID int64, resourceKey string, kinds []Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM group_grants
		 WHERE group_id = $1 AND resource_key = $2 AND kind = ANY ($3::permission_kind[])`,
		groupID, resourceKey, kindStrings(kinds))
	if err != nil {
		return fmt.Errorf("acl: delete group grants: %w", err)
	}
	return nil
}

// Permissions returns the deduplicated union of the four grant channels for
// one resource: direct grants, any-user direct grants, membership grants, and
// any-user membership grants. The last channel stays in the join for
// structural symmetry even though the any-user sentinel holds no memberships
// in bootstrap data.
func (s *PGStore) Permissions(ctx context.Context, userID int64, resourceKey string) ([]Kind, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT kind FROM (
			SELECT kind
			FROM user_grants
			WHERE (user_id = $1 OR user_id = $2)
			  AND resource_key = $3

			UNION ALL

			SELECT gg.kind
			FROM group_grants gg
			INNER JOIN group_members gm ON gg.group_id = gm.group_id
			WHERE (gm.user_id = $1 OR gm.user_id = $2)
			  AND gg.resource_key = $3
		) AS granted`,
		userID, principal.AnyUserID, resourceKey)
	if err != nil {
		return nil, fmt.Errorf("acl: permissions: %w", err)
	}
	defer rows.Close()

	var kinds []Kind
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		kinds = append(kinds, Kind(k))
	}
	return kinds, rows.Err()
}

// HasPermission reports whether any channel grants the kind on the resource.
func (s *PGStore) HasPermission(ctx context.Context, userID int64, resourceKey string, kind Kind) (bool, error) {
	var granted bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_grants
			WHERE (user_id = $1 OR user_id = $2)
			  AND resource_key = $3
			  AND kind = $4

			UNION ALL

			SELECT 1
			FROM group_grants gg
			INNER JOIN group_members gm ON gg.group_id = gm.group_id
			WHERE (gm.user_id = $1 OR gm.user_id = $2)
			  AND gg.resource_key = $3
			  AND gg.kind = $4
		)`,
		userID, principal.AnyUserID, resourceKey, string(kind)).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("acl: has permission: %w", err)
	}
	return granted, nil
}

// AllPermissions returns every (resource key, kind) pair reachable by the
// user across all channels. This scans both grant relations unscoped; treat
// it as an administrative query, not a hot path.
func (s *PGStore) AllPermissions(ctx context.Context, userID int64) ([]ResourceGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT resource_key, kind FROM (
			SELECT resource_key, kind
			FROM user_grants
			WHERE user_id = $1 OR user_id = $2

			UNION ALL

			SELECT gg.resource_key, gg.kind
			FROM group_grants gg
			INNER JOIN group_members gm ON gg.group_id = gm.group_id
			WHERE gm.user_id = $1 OR gm.user_id = $2
		) AS granted
		ORDER BY resource_key, kind`,
		userID, principal.AnyUserID)
	if err != nil {
		return nil, fmt.Errorf("acl: all permissions: %w", err)
	}
	defer rows.Close()

	var grants []ResourceGrant
	for rows.Next() {
		var g ResourceGrant
		var k string
		if err := rows.Scan(&g.ResourceKey, &k); err != nil {
			return nil, err
		}
		g.Kind = Kind(k)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UserExists reports whether the user row exists.
func (s *PGStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("acl: user exists: %w", err)
	}
	return found, nil
}

// ResourceExists reports whether the resource key is registered.
func (s *PGStore) ResourceExists(ctx context.Context, resourceKey string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM resources WHERE key = $1)`, resourceKey).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("acl: resource exists: %w", err)
	}
	return found, nil
}

func kindStrings(kinds []Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
