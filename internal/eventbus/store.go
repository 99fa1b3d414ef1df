package eventbus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists subscriptions and their pending deliveries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) CreateSubscription(ctx context.Context, sub Subscription) (int64, error) {
	if sub.Topic == "" {
		return 0, fmt.Errorf("subscription topic is empty")
	}
	if sub.DeliveryURL == "" {
		return 0, fmt.Errorf("subscription delivery url is empty")
	}
	if sub.Status == "" {
		sub.Status = SubscriptionActive
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO subscriptions(name, topic, delivery_url, secret, status, created_at)
VALUES(?, ?, ?, ?, ?, ?);
`, sub.Name, sub.Topic, sub.DeliveryURL, sub.Secret, sub.Status, s.now().UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("subscription id: %w", err)
	}
	return id, nil
}

// DeleteSubscription removes a subscription and drops its pending deliveries.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?;", id)
	if err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSubscriptionNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM webhook_deliveries WHERE subscription_id = ? AND status = ?;", id, DeliveryPending); err != nil {
		return fmt.Errorf("drop pending deliveries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, topic, delivery_url, secret, status, created_at
FROM subscriptions
WHERE id = ?;
`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %d: %w", id, err)
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, f Filter) ([]Subscription, error) {
	var (
		where []string
		args  []any
	)
	if f.NamePrefix != "" {
		where = append(where, "substr(name, 1, ?) = ?")
		args = append(args, utf8.RuneCountInString(f.NamePrefix), f.NamePrefix)
	}
	if f.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, f.Topic)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, nil
		}
		marks := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			marks[i] = "?"
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(marks, ", ")+")")
	}

	q := "SELECT id, name, topic, delivery_url, secret, status, created_at FROM subscriptions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id ASC;"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func (s *Store) enqueueDelivery(ctx context.Context, sub Subscription, topic string, resourceID int64, maxAttempts int) (string, error) {
	id := uuid.NewString()
	now := s.now().UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries(id, subscription_id, topic, resource_id, status, attempt, max_attempts, next_attempt_at, created_at)
VALUES(?, ?, ?, ?, ?, 0, ?, ?, ?);
`, id, sub.ID, topic, resourceID, DeliveryPending, maxAttempts, now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery: %w", err)
	}
	return id, nil
}

// dueDeliveries returns pending deliveries whose next attempt is due.
func (s *Store) dueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE status = ? AND next_attempt_at <= ?
ORDER BY next_attempt_at ASC, rowid ASC
LIMIT ?;
`, DeliveryPending, s.now().UTC().Format(timeFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("due deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// ListDeliveries returns the most recent deliveries for a subscription, newest first.
func (s *Store) ListDeliveries(ctx context.Context, subscriptionID int64, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE subscription_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// recordAttempt stores the outcome of one delivery attempt.
func (s *Store) recordAttempt(ctx context.Context, id string, status DeliveryStatus, next time.Time, code int, lastErr string) error {
	var completed any
	if status != DeliveryPending {
		completed = s.now().UTC().Format(timeFormat)
	}
	var codeV, errV any
	if code != 0 {
		codeV = code
	}
	if lastErr != "" {
		errV = lastErr
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET status = ?, attempt = attempt + 1, next_attempt_at = ?, response_code = ?, last_error = ?, completed_at = ?
WHERE id = ?;
`, status, next.UTC().Format(timeFormat), codeV, errV, completed, id)
	if err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}

const deliveryColumns = `id, subscription_id, topic, resource_id, status, attempt, max_attempts, next_attempt_at,
  response_code, last_error, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub      Subscription
		statusS  string
		createdS string
	)
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Topic, &sub.DeliveryURL, &sub.Secret, &statusS, &createdS); err != nil {
		return nil, err
	}
	sub.Status = SubscriptionStatus(statusS)
	if t, err := time.Parse(timeFormat, createdS); err == nil {
		sub.CreatedAt = t
	}
	return &sub, nil
}

func scanDeliveries(rows *sql.Rows) ([]Delivery, error) {
	var out []Delivery
	for rows.Next() {
		var (
			d          Delivery
			statusS    string
			nextS      string
			code       sql.NullInt64
			lastErr    sql.NullString
			createdS   string
			completedS sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.Topic, &d.ResourceID, &statusS, &d.Attempt, &d.MaxAttempts, &nextS,
			&code, &lastErr, &createdS, &completedS); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = DeliveryStatus(statusS)
		d.ResponseCode = int(code.Int64)
		d.LastError = lastErr.String
		if t, err := time.Parse(timeFormat, nextS); err == nil {
			d.NextAttemptAt = t
		}
		if t, err := time.Parse(timeFormat, createdS); err == nil {
			d.CreatedAt = t
		}
		if completedS.Valid {
			if t, err := time.Parse(timeFormat, completedS.String); err == nil {
				d.CompletedAt = &t
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
