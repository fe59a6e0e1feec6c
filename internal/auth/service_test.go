package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/shared"
	"github.com/gatehouse-io/gatehouse/jobs"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type storedReset struct {
	userID    int64
	createdAt time.Time
}

type mockRepository struct {
	creds  map[string]*Credential // by username
	resets map[string]storedReset
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		creds:  make(map[string]*Credential),
		resets: make(map[string]storedReset),
	}
}

func (m *mockRepository) addUser(id int64, username, name string) {
	m.creds[username] = &Credential{UserID: id, Username: username, Name: name}
}

func (m *mockRepository) FindByUsername(_ context.Context, username string) (*Credential, error) {
	cred, ok := m.creds[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cred, nil
}

func (m *mockRepository) SetPassword(_ context.Context, userID int64, hashed, salt []byte) error {
	for _, cred := range m.creds {
		if cred.UserID == userID {
			cred.HashedPassword = hashed
			cred.Salt = salt
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepository) CreateResetRequest(_ context.Context, userID int64, token string) error {
	m.resets[token] = storedReset{userID: userID, createdAt: time.Now()}
	return nil
}

func (m *mockRepository) ConsumeResetRequest(ctx context.Context, token string, maxAge time.Duration, hashed, salt []byte) error {
	req, ok := m.resets[token]
	if !ok {
		return shared.ErrInvalidArgument
	}
	if time.Since(req.createdAt) > maxAge {
		delete(m.resets, token)
		return shared.ErrInvalidArgument
	}
	if err := m.SetPassword(ctx, req.userID, hashed, salt); err != nil {
		return err
	}
	for t, r := range m.resets {
		if r.userID == req.userID {
			delete(m.resets, t)
		}
	}
	return nil
}

var _ Repository = (*mockRepository)(nil)

type mockEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (m *mockEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo Repository, enq Enqueuer) *Service {
	return NewService(repo, enq, discardLogger(), "https://gatehouse.example", 24*time.Hour)
}

// ============================================================================
// AUTHENTICATION
// ============================================================================

func TestSetPasswordThenAuthenticate(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetPassword(ctx, 1, "s3cret"))

	cred, err := svc.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cred.UserID)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownUserLooksLikeWrongPassword(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	svc := newTestService(repo, nil)
	ctx := context.Background()
	require.NoError(t, svc.SetPassword(ctx, 1, "s3cret"))

	_, errUnknown := svc.Authenticate(ctx, "nobody", "s3cret")
	_, errWrong := svc.Authenticate(ctx, "alice", "wrong")
	assert.Equal(t, errUnknown, errWrong)
	assert.ErrorIs(t, errUnknown, shared.ErrInvalidCredentials)
}

func TestAuthenticateRejectsPasswordlessAccount(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	svc := newTestService(repo, nil)

	_, err := svc.Authenticate(context.Background(), "alice", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSetPasswordSaltsEveryHash(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetPassword(ctx, 1, "s3cret"))
	first := append([]byte(nil), repo.creds["alice"].HashedPassword...)

	require.NoError(t, svc.SetPassword(ctx, 1, "s3cret"))
	assert.NotEqual(t, first, repo.creds["alice"].HashedPassword)
}

func TestSetPasswordRejectsEmpty(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)

	err := svc.SetPassword(context.Background(), 1, "")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

// ============================================================================
// PASSWORD RESET
// ============================================================================

func TestRequestResetStoresTokenAndQueuesEmail(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	enq := &mockEnqueuer{}
	svc := newTestService(repo, enq)

	require.NoError(t, svc.RequestReset(context.Background(), "alice"))

	require.Len(t, repo.resets, 1)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskTypeSendEmail, enq.tasks[0].Type())

	var payload jobs.SendEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "alice", payload.To)
	for token := range repo.resets {
		assert.Contains(t, payload.Body, "https://gatehouse.example/password-reset?token="+token)
	}
}

func TestRequestResetIsSilentForUnknownUser(t *testing.T) {
	enq := &mockEnqueuer{}
	svc := newTestService(newMockRepository(), enq)

	require.NoError(t, svc.RequestReset(context.Background(), "nobody"))
	assert.Empty(t, enq.tasks)
}

func TestRequestResetSurvivesEnqueueFailure(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	enq := &mockEnqueuer{err: assert.AnError}
	svc := newTestService(repo, enq)

	require.NoError(t, svc.RequestReset(context.Background(), "alice"))
	assert.Len(t, repo.resets, 1, "token must be stored even when the email cannot be queued")
}

func TestResetPasswordRedeemsToken(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "alice"))
	var token string
	for tok := range repo.resets {
		token = tok
	}

	require.NoError(t, svc.ResetPassword(ctx, token, "newpass"))

	_, err := svc.Authenticate(ctx, "alice", "newpass")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, token, "again")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument, "tokens are single use")
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	repo := newMockRepository()
	repo.addUser(1, "alice", "Alice")
	repo.resets["stale"] = storedReset{userID: 1, createdAt: time.Now().Add(-48 * time.Hour)}
	svc := newTestService(repo, nil)

	err := svc.ResetPassword(context.Background(), "stale", "newpass")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestResetPasswordRejectsUnknownToken(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)

	err := svc.ResetPassword(context.Background(), "bogus", "newpass")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}
