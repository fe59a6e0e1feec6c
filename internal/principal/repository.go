package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/platform/db"
	"github.com/gatehouse-io/gatehouse/internal/resource"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository defines persistence operations over users, groups, and
// memberships.
type Repository interface {
	CreateUser(ctx context.Context, username, name string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateGroup(ctx context.Context, name, description string) (Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	DeleteGroup(ctx context.Context, id int64) error

	AddMembership(ctx context.Context, userID, groupID int64) error
	RemoveMembership(ctx context.Context, userID, groupID int64) error
	ListGroupsOf(ctx context.Context, userID int64) ([]Group, error)
	ListGroupIDsOf(ctx context.Context, userID int64) ([]int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool     *pgxpool.Pool
	registry *resource.Registry
}

// NewRepository constructs a PostgreSQL repository. The registry provisions
// group resource keys inside the group-creation transaction.
func NewRepository(pool *pgxpool.Pool, registry *resource.Registry) *PGRepository {
	return &PGRepository{pool: pool, registry: registry}
}

var _ Repository = (*PGRepository)(nil)

// CreateUser inserts a new user without credentials. Credential writes go
// through the auth repository.
func (r *PGRepository) CreateUser(ctx context.Context, username, name string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, name) VALUES ($1, $2) RETURNING id, username, name`,
		username, name).Scan(&u.ID, &u.Username, &u.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: username %q", shared.ErrDuplicate, username)
		}
		return User{}, fmt.Errorf("principal: create user: %w", err)
	}
	return u, nil
}

// GetUser fetches a user by id.
func (r *PGRepository) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(username, ''), COALESCE(name, '') FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("principal: get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername fetches a user by unique username.
func (r *PGRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(username, ''), COALESCE(name, '') FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("principal: get user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-sentinel users ordered by name.
func (r *PGRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, COALESCE(username, ''), COALESCE(name, '')
		 FROM users WHERE id > 0 ORDER BY name ASC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("principal: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user; memberships and grants cascade. Sentinel
// principals are never deleted.
func (r *PGRepository) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: sentinel principals cannot be deleted", shared.ErrInvalidArgument)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("principal: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateGroup inserts a group and provisions its resource key in one
// transaction. The returned group is re-read inside the transaction so the
// caller sees the key that was written back; on any failure nothing persists.
func (r *PGRepository) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	var g Group
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO groups (name, description) VALUES ($1, $2) RETURNING id`,
			name, description).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: group %q", shared.ErrDuplicate, name)
			}
			return fmt.Errorf("principal: create group: %w", err)
		}

		if _, err := r.registry.Provision(ctx, tx, "groups", id); err != nil {
			return err
		}

		return tx.QueryRow(ctx,
			`SELECT id, name, COALESCE(description, ''), resource_key FROM groups WHERE id = $1`, id).
			Scan(&g.ID, &g.Name, &g.Description, &g.ResourceKey)
	})
	if err != nil {
		return Group{}, err
	}
	return g, nil
}

// GetGroup fetches a group by id.
func (r *PGRepository) GetGroup(ctx context.Context, id int64) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(description, ''), resource_key FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Description, &g.ResourceKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, fmt.Errorf("principal: get group: %w", err)
	}
	return g, nil
}

// ListGroups returns all non-sentinel groups ordered by name.
func (r *PGRepository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, COALESCE(description, ''), resource_key
		 FROM groups WHERE id > 0 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("principal: list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ResourceKey); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup removes the group and retires its resource key in one
// transaction. Memberships and grants cascade from both deletes.
func (r *PGRepository) DeleteGroup(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: sentinel principals cannot be deleted", shared.ErrInvalidArgument)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var key string
		err := tx.QueryRow(ctx, `SELECT resource_key FROM groups WHERE id = $1`, id).Scan(&key)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("principal: delete group: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
			return fmt.Errorf("principal: delete group: %w", err)
		}
		return r.registry.Retire(ctx, tx, key)
	})
}

// AddMembership links a user to a group. Adding an existing membership is a
// no-op under the unique-pair constraint.
func (r *PGRepository) AddMembership(ctx context.Context, userID, groupID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: user %d or group %d does not exist", shared.ErrInvalidArgument, userID, groupID)
		}
		return fmt.Errorf("principal: add membership: %w", err)
	}
	return nil
}

// RemoveMembership unlinks a user from a group. Removing an absent membership
// is a no-op.
func (r *PGRepository) RemoveMembership(ctx context.Context, userID, groupID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("principal: remove membership: %w", err)
	}
	return nil
}

// ListGroupsOf returns the groups the user belongs to.
func (r *PGRepository) ListGroupsOf(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, COALESCE(g.description, ''), g.resource_key
		 FROM groups g
		 INNER JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("principal: list groups of user: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ResourceKey); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListGroupIDsOf returns only the ids of the user's groups.
func (r *PGRepository) ListGroupIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY group_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("principal: list group ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
