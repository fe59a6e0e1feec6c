package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/platform/db"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	SetPassword(ctx context.Context, userID int64, hashed, salt []byte) error
	CreateResetRequest(ctx context.Context, userID int64, token string) error
	ConsumeResetRequest(ctx context.Context, token string, maxAge time.Duration, hashed, salt []byte) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// FindByUsername fetches a credential by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	var c Credential
	err := r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(username, ''), COALESCE(name, ''), hashed_password, salt
		 FROM users WHERE username = $1`, username).
		Scan(&c.UserID, &c.Username, &c.Name, &c.HashedPassword, &c.Salt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find by username: %w", err)
	}
	return &c, nil
}

// SetPassword stores new password material for the user.
func (r *PGRepository) SetPassword(ctx context.Context, userID int64, hashed, salt []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET hashed_password = $1, salt = $2 WHERE id = $3`, hashed, salt, userID)
	if err != nil {
		return fmt.Errorf("auth: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateResetRequest persists a password reset token for the user.
func (r *PGRepository) CreateResetRequest(ctx context.Context, userID int64, token string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_reset_requests (user_id, token) VALUES ($1, $2)`, userID, token)
	if err != nil {
		return fmt.Errorf("auth: create reset request: %w", err)
	}
	return nil
}

// ConsumeResetRequest redeems an unexpired token: the password is rewritten
// and every outstanding request for that user is invalidated, all in one
// transaction. An unknown or expired token is an invalid argument, not a
// fault.
func (r *PGRepository) ConsumeResetRequest(ctx context.Context, token string, maxAge time.Duration, hashed, salt []byte) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var userID int64
		var createdAt time.Time
		err := tx.QueryRow(ctx,
			`SELECT user_id, created_at FROM password_reset_requests WHERE token = $1`, token).
			Scan(&userID, &createdAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: unknown reset token", shared.ErrInvalidArgument)
			}
			return fmt.Errorf("auth: consume reset request: %w", err)
		}
		if time.Since(createdAt) > maxAge {
			_, _ = tx.Exec(ctx, `DELETE FROM password_reset_requests WHERE token = $1`, token)
			return fmt.Errorf("%w: reset token expired", shared.ErrInvalidArgument)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET hashed_password = $1, salt = $2 WHERE id = $3`, hashed, salt, userID); err != nil {
			return fmt.Errorf("auth: consume reset request: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM password_reset_requests WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("auth: consume reset request: %w", err)
		}
		return nil
	})
}
