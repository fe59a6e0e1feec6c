package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/crypto/pbkdf2"

	"github.com/gatehouse-io/gatehouse/internal/shared"
	"github.com/gatehouse-io/gatehouse/jobs"
)

// Password hashing parameters. Changing them invalidates stored credentials.
const (
	pbkdf2Iterations = 310000
	pbkdf2KeyLen     = 32
	saltLen          = 16
)

// Enqueuer submits background tasks. Satisfied by *asynq.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service wraps credential verification and the password reset flow.
type Service struct {
	repo     Repository
	enqueuer Enqueuer
	logger   *slog.Logger
	baseURL  string
	resetTTL time.Duration
}

// NewService constructs a Service. enqueuer may be nil, in which case reset
// emails are skipped (the token is still stored).
func NewService(repo Repository, enqueuer Enqueuer, logger *slog.Logger, baseURL string, resetTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		enqueuer: enqueuer,
		logger:   logger,
		baseURL:  baseURL,
		resetTTL: resetTTL,
	}
}

// Authenticate validates username/password credentials. Every failure path
// collapses to ErrInvalidCredentials so callers cannot distinguish unknown
// users from wrong passwords.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Credential, error) {
	cred, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if len(cred.HashedPassword) == 0 || len(cred.Salt) == 0 {
		return nil, shared.ErrInvalidCredentials
	}
	derived := hashPassword(password, cred.Salt)
	if !hmac.Equal(derived, cred.HashedPassword) {
		return nil, shared.ErrInvalidCredentials
	}
	return cred, nil
}

// SetPassword hashes and stores a new password for the user.
func (s *Service) SetPassword(ctx context.Context, userID int64, password string) error {
	if password == "" {
		return fmt.Errorf("%w: password required", shared.ErrInvalidArgument)
	}
	hashed, salt, err := newPasswordHash(password)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, userID, hashed, salt)
}

// RequestReset stores a reset token and queues the notification email. The
// outcome is identical whether or not the username exists, so the endpoint
// does not leak account presence.
func (s *Service) RequestReset(ctx context.Context, username string) error {
	cred, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}

	token := uuid.NewString()
	if err := s.repo.CreateResetRequest(ctx, cred.UserID, token); err != nil {
		return err
	}

	if s.enqueuer == nil {
		return nil
	}
	task, err := jobs.NewSendEmailTask(jobs.SendEmailPayload{
		To:      cred.Username,
		Subject: "Password reset request",
		Body: fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account. "+
			"Follow this link to choose a new password:\n\n%s/password-reset?token=%s\n\n"+
			"If you did not request this, ignore this message.\n", cred.Name, s.baseURL, token),
	})
	if err != nil {
		return err
	}
	if _, err := s.enqueuer.Enqueue(task); err != nil {
		// The token is stored; delivery can be retried by requesting again.
		s.logger.Error("enqueue reset email", slog.Any("error", err))
	}
	return nil
}

// ResetPassword redeems a reset token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if password == "" {
		return fmt.Errorf("%w: password required", shared.ErrInvalidArgument)
	}
	hashed, salt, err := newPasswordHash(password)
	if err != nil {
		return err
	}
	return s.repo.ConsumeResetRequest(ctx, token, s.resetTTL, hashed, salt)
}

func newPasswordHash(password string) (hashed, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("auth: generate salt: %w", err)
	}
	return hashPassword(password, salt), salt, nil
}

func hashPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}
