// Package queue is a durable SQLite outbox with at-least-once claim semantics
// and exponential retry.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxErrorBytes = 4 * 1024

// timeFormat is fixed width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Queue struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Event == "" {
		return "", fmt.Errorf("event is empty")
	}
	if len(req.Payload) == 0 {
		return "", fmt.Errorf("payload is empty")
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	id := uuid.NewString()
	now := q.now().UTC().Format(timeFormat)
	_, err := q.db.ExecContext(ctx, `
INSERT INTO notification_outbox(id, event, payload, status, attempt, max_attempts, next_attempt_at, created_at)
VALUES(?, ?, ?, ?, 0, ?, ?, ?);
`, id, req.Event, string(req.Payload), StatusQueued, maxAttempts, now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", req.Event, err)
	}
	return id, nil
}

// Dequeue claims the oldest due job, marks it running and bumps its attempt
// counter. Returns (nil, nil) if nothing is due.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	nowS := q.now().UTC().Format(timeFormat)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM notification_outbox
  WHERE status = ? AND next_attempt_at <= ?
  ORDER BY next_attempt_at ASC, rowid ASC
  LIMIT 1
)
UPDATE notification_outbox
SET status = ?, attempt = attempt + 1
WHERE id IN (SELECT id FROM next)
RETURNING id, event, payload, status, attempt, max_attempts, next_attempt_at, last_error, created_at, completed_at;
`, StatusQueued, nowS, StatusRunning)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return j, nil
}

// Get loads a job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT id, event, payload, status, attempt, max_attempts, next_attempt_at, last_error, created_at, completed_at
FROM notification_outbox
WHERE id = ?;
`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Complete marks a running job succeeded.
func (q *Queue) Complete(ctx context.Context, id string) error {
	now := q.now().UTC().Format(timeFormat)
	res, err := q.db.ExecContext(ctx, `
UPDATE notification_outbox
SET status = ?, completed_at = ?, last_error = NULL
WHERE id = ?;
`, StatusSucceeded, now, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res)
}

// Fail records a failed attempt. The job is requeued with backoff unless it
// has used all its attempts, in which case it becomes dead. The resulting
// status is returned.
func (q *Queue) Fail(ctx context.Context, id string, cause error) (Status, error) {
	j, err := q.Get(ctx, id)
	if err != nil {
		return "", err
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorBytes {
		msg = msg[:maxErrorBytes]
	}

	now := q.now().UTC()
	if j.Attempt >= j.MaxAttempts {
		_, err = q.db.ExecContext(ctx, `
UPDATE notification_outbox
SET status = ?, last_error = ?, completed_at = ?
WHERE id = ?;
`, StatusDead, msg, now.Format(timeFormat), id)
		if err != nil {
			return "", fmt.Errorf("bury job: %w", err)
		}
		return StatusDead, nil
	}

	next := now.Add(Backoff(j.Attempt - 1))
	_, err = q.db.ExecContext(ctx, `
UPDATE notification_outbox
SET status = ?, last_error = ?, next_attempt_at = ?
WHERE id = ?;
`, StatusQueued, msg, next.Format(timeFormat), id)
	if err != nil {
		return "", fmt.Errorf("requeue job: %w", err)
	}
	return StatusQueued, nil
}

// RecoverRunning requeues jobs left running by a previous process.
func (q *Queue) RecoverRunning(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, "UPDATE notification_outbox SET status = ? WHERE status = ?;", StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("recover running jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Backoff returns 1s*2^attempt, capped at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 12 {
		return time.Hour
	}
	d := time.Second * time.Duration(1<<attempt)
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j            Job
		payload      string
		statusS      string
		nextS        string
		lastError    sql.NullString
		createdAtS   string
		completedAtS sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Event, &payload, &statusS, &j.Attempt, &j.MaxAttempts, &nextS, &lastError, &createdAtS, &completedAtS); err != nil {
		return nil, err
	}
	j.Payload = []byte(payload)
	j.Status = Status(statusS)
	if t, err := time.Parse(timeFormat, nextS); err == nil {
		j.NextAttemptAt = t
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	if t, err := time.Parse(timeFormat, createdAtS); err == nil {
		j.CreatedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(timeFormat, completedAtS.String); err == nil {
			j.CompletedAt = &t
		}
	}
	return &j, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
