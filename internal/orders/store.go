// Package orders persists the order subset owned by the pickup protocol:
// shipping lines, lockerlink_* fields and order notes.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned when an order ID does not resolve.
var ErrNotFound = errors.New("order not found")

// Event topics published after a successful write.
const (
	TopicCreated = "order.created"
	TopicUpdated = "order.updated"
)

// Publisher receives order change events. The event bus implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, orderID int64) error
}

type Store struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// SetPublisher wires the order-event bus. A nil publisher disables events.
func (s *Store) SetPublisher(p Publisher) {
	s.publisher = p
}

// Create inserts a new order with its shipping lines and any staged fields.
func (s *Store) Create(ctx context.Context, o *Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	nowS := now.Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
INSERT INTO orders(number, billing_email, billing_first_name, created_at, updated_at)
VALUES(?, ?, ?, ?, ?);
`, o.Number, o.BillingEmail, o.BillingFirstName, nowS, nowS)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}

	o.ID = id
	o.CreatedAt = now
	o.UpdatedAt = now
	o.shippingDirty = true
	if err := s.writePending(ctx, tx, o, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	o.clearPending()

	s.publish(ctx, TopicCreated, id)
	return nil
}

// Get loads an order with its fields and shipping lines.
func (s *Store) Get(ctx context.Context, id int64) (*Order, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}

	o := &Order{ID: id, fields: make(map[string]string)}
	var createdS, updatedS string
	err := s.db.QueryRowContext(ctx, `
SELECT number, billing_email, billing_first_name, created_at, updated_at
FROM orders
WHERE id = ?;
`, id).Scan(&o.Number, &o.BillingEmail, &o.BillingFirstName, &createdS, &updatedS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdS); err == nil {
		o.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedS); err == nil {
		o.UpdatedAt = t
	}

	rows, err := s.db.QueryContext(ctx, "SELECT method_id, title FROM order_shipping_lines WHERE order_id = ? ORDER BY position;", id)
	if err != nil {
		return nil, fmt.Errorf("load shipping lines: %w", err)
	}
	for rows.Next() {
		var l ShippingLine
		if err := rows.Scan(&l.MethodID, &l.Title); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan shipping line: %w", err)
		}
		o.ShippingLines = append(o.ShippingLines, l)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load shipping lines: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, "SELECT meta_key, meta_value FROM order_meta WHERE order_id = ?;", id)
	if err != nil {
		return nil, fmt.Errorf("load order fields: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order field: %w", err)
		}
		o.fields[k] = v
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load order fields: %w", err)
	}
	return o, nil
}

// Save applies every staged field change, shipping change and note in one transaction.
func (s *Store) Save(ctx context.Context, o *Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if !o.Changed() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, "UPDATE orders SET updated_at = ? WHERE id = ?;", now.Format(time.RFC3339Nano), o.ID)
	if err != nil {
		return fmt.Errorf("touch order %d: %w", o.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if err := s.writePending(ctx, tx, o, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	o.UpdatedAt = now
	o.clearPending()

	s.publish(ctx, TopicUpdated, o.ID)
	return nil
}

// Notes lists an order's notes, oldest first.
func (s *Store) Notes(ctx context.Context, id int64) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, note, customer_visible, created_at
FROM order_notes
WHERE order_id = ?
ORDER BY id ASC;
`, id)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var (
			n        Note
			visible  int
			createdS string
		)
		if err := rows.Scan(&n.ID, &n.Text, &visible, &createdS); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CustomerVisible = visible != 0
		if t, err := time.Parse(time.RFC3339Nano, createdS); err == nil {
			n.CreatedAt = t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) writePending(ctx context.Context, tx *sql.Tx, o *Order, now time.Time) error {
	nowS := now.Format(time.RFC3339Nano)

	if o.shippingDirty {
		if _, err := tx.ExecContext(ctx, "DELETE FROM order_shipping_lines WHERE order_id = ?;", o.ID); err != nil {
			return fmt.Errorf("clear shipping lines: %w", err)
		}
		for i, l := range o.ShippingLines {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO order_shipping_lines(order_id, position, method_id, title)
VALUES(?, ?, ?, ?);
`, o.ID, i, l.MethodID, l.Title); err != nil {
				return fmt.Errorf("insert shipping line: %w", err)
			}
		}
	}

	for k, v := range o.dirty {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO order_meta(order_id, meta_key, meta_value)
VALUES(?, ?, ?)
ON CONFLICT(order_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value;
`, o.ID, k, v); err != nil {
			return fmt.Errorf("upsert order field %q: %w", k, err)
		}
	}

	for _, n := range o.pendingNotes {
		visible := 0
		if n.CustomerVisible {
			visible = 1
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO order_notes(order_id, note, customer_visible, created_at)
VALUES(?, ?, ?, ?);
`, o.ID, n.Text, visible, nowS); err != nil {
			return fmt.Errorf("insert order note: %w", err)
		}
	}
	return nil
}

func (s *Store) publish(ctx context.Context, topic string, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, id); err != nil && s.logger != nil {
		s.logger.Error("order event publish failed", "topic", topic, "order_id", id, "error", err)
	}
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
