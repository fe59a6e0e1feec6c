package resource

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// fakeQuerier scripts Exec results in call order and records the statements it
// saw.
type fakeQuerier struct {
	tags  []pgconn.CommandTag
	errs  []error
	calls []struct {
		sql  string
		args []any
	}
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	i := len(f.calls)
	f.calls = append(f.calls, struct {
		sql  string
		args []any
	}{sql, args})
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var tag pgconn.CommandTag
	if i < len(f.tags) {
		tag = f.tags[i]
	}
	return tag, err
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not scripted")
}

func tag(s string) pgconn.CommandTag { return pgconn.NewCommandTag(s) }

func TestKey(t *testing.T) {
	assert.Equal(t, "users-7", Key("users", 7))
	assert.Equal(t, "groups-42", Key("groups", 42))
	assert.Equal(t, "groups--1", Key("groups", -1))
}

func TestProvisionInsertsKeyAndAttachesIt(t *testing.T) {
	q := &fakeQuerier{tags: []pgconn.CommandTag{tag("INSERT 0 1"), tag("UPDATE 1")}}
	registry := NewRegistry()

	key, err := registry.Provision(context.Background(), q, "groups", 42)
	require.NoError(t, err)
	assert.Equal(t, "groups-42", key)

	require.Len(t, q.calls, 2)
	assert.Contains(t, q.calls[0].sql, "INSERT INTO resources")
	assert.Equal(t, []any{"groups-42"}, q.calls[0].args)
	assert.Contains(t, q.calls[1].sql, `UPDATE "groups" SET resource_key`)
	assert.Equal(t, []any{"groups-42", int64(42)}, q.calls[1].args)
}

func TestProvisionRejectsKeyCollision(t *testing.T) {
	q := &fakeQuerier{tags: []pgconn.CommandTag{tag("INSERT 0 0")}}

	_, err := NewRegistry().Provision(context.Background(), q, "groups", 42)
	assert.ErrorIs(t, err, shared.ErrProvisioning)
	assert.Len(t, q.calls, 1, "attachment must not run after a collision")
}

func TestProvisionRejectsMissingEntityRow(t *testing.T) {
	q := &fakeQuerier{tags: []pgconn.CommandTag{tag("INSERT 0 1"), tag("UPDATE 0")}}

	_, err := NewRegistry().Provision(context.Background(), q, "groups", 42)
	assert.ErrorIs(t, err, shared.ErrProvisioning)
}

func TestProvisionWrapsExecFaults(t *testing.T) {
	q := &fakeQuerier{errs: []error{errors.New("deadlock detected")}}

	_, err := NewRegistry().Provision(context.Background(), q, "groups", 42)
	assert.ErrorIs(t, err, shared.ErrProvisioning)
}

func TestProvisionQuotesEntityKind(t *testing.T) {
	q := &fakeQuerier{tags: []pgconn.CommandTag{tag("INSERT 0 1"), tag("UPDATE 1")}}

	_, err := NewRegistry().Provision(context.Background(), q, `bad"kind`, 1)
	require.NoError(t, err)
	assert.False(t, strings.Contains(q.calls[1].sql, `bad"kind SET`),
		"identifier must be sanitized before interpolation")
}

func TestRetireDeletesResourceRow(t *testing.T) {
	q := &fakeQuerier{tags: []pgconn.CommandTag{tag("DELETE 1")}}

	require.NoError(t, NewRegistry().Retire(context.Background(), q, "groups-42"))
	require.Len(t, q.calls, 1)
	assert.Contains(t, q.calls[0].sql, "DELETE FROM resources")
}

func TestRegisterIsIdempotent(t *testing.T) {
	q := &fakeQuerier{tags: []pgconn.CommandTag{tag("INSERT 0 1"), tag("INSERT 0 0")}}
	registry := NewRegistry()

	require.NoError(t, registry.Register(context.Background(), q, "user-any"))
	require.NoError(t, registry.Register(context.Background(), q, "user-any"))
}
