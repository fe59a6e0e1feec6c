package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements holds the DDL for the authorization store. Every grant and
// membership table carries a uniqueness constraint and cascading foreign keys,
// so deleting a user, group, or resource removes its dependent rows in the
// same statement.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE,
		hashed_password BYTEA,
		salt BYTEA,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS resources (
		key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE,
		description TEXT,
		resource_key TEXT NOT NULL DEFAULT 'invalid'
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE (group_id, user_id)
	)`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'permission_kind') THEN
			CREATE TYPE permission_kind AS ENUM ('create', 'read', 'write', 'delete');
		END IF;
	END$$`,
	`CREATE TABLE IF NOT EXISTS user_grants (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		resource_key TEXT NOT NULL REFERENCES resources(key) ON DELETE CASCADE,
		kind permission_kind NOT NULL,
		UNIQUE (user_id, resource_key, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS group_grants (
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		resource_key TEXT NOT NULL REFERENCES resources(key) ON DELETE CASCADE,
		kind permission_kind NOT NULL,
		UNIQUE (group_id, resource_key, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS password_reset_requests (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// EnsureSchema applies the store schema. Statements are idempotent so the
// function is safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: ensure schema: %w", err)
		}
	}
	return nil
}
