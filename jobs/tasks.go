// Package jobs defines background tasks and the Asynq worker that runs them.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeResetPrune is the task type for expiring stale password reset
	// requests.
	TaskTypeResetPrune = "auth:reset_prune"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewResetPruneTask constructs the prune task; it carries no payload.
func NewResetPruneTask() *asynq.Task {
	return asynq.NewTask(TaskTypeResetPrune, nil)
}

// NewSendEmailHandler returns the handler processing TaskTypeSendEmail tasks
// through the given mailer.
func NewSendEmailHandler(mailer *Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode send email payload: %v: %w", err, asynq.SkipRetry)
		}
		return mailer.Send(ctx, payload.To, payload.Subject, payload.Body)
	}
}

// NewResetPruneHandler returns the handler deleting password reset requests
// older than maxAge.
func NewResetPruneHandler(pool *pgxpool.Pool, maxAge time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		_, err := pool.Exec(ctx,
			`DELETE FROM password_reset_requests WHERE created_at < NOW() - make_interval(secs => $1)`,
			maxAge.Seconds())
		return err
	}
}
