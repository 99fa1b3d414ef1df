package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/metrics"
	"github.com/Jcapehart2/lockerlink/internal/orders"
	"github.com/Jcapehart2/lockerlink/internal/queue"
)

// Queue is the outbox read side. *queue.Queue satisfies it.
type Queue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error) (queue.Status, error)
	RecoverRunning(ctx context.Context) (int64, error)
}

// OrderLookup resolves orders for rendering.
type OrderLookup interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
}

type WorkerConfig struct {
	PollInterval time.Duration
	// ViewOrderURL is the customer order page, with {order_id} or {order_number} placeholders.
	ViewOrderURL string
}

// Worker drains the outbox and sends pickup-ready emails.
type Worker struct {
	queue  Queue
	orders OrderLookup
	mailer Mailer
	cfg    WorkerConfig
	logger *slog.Logger
}

func NewWorker(q Queue, orderLookup OrderLookup, mailer Mailer, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{queue: q, orders: orderLookup, mailer: mailer, cfg: cfg, logger: logger}
}

// Run recovers jobs abandoned by a previous process, then polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.queue.RecoverRunning(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Warn("requeued interrupted notifications", "count", n)
	}

	w.logger.Info("notification worker started", "poll_interval", w.cfg.PollInterval.String())
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("notification worker stopped")
			return ctx.Err()
		case <-ticker.C:
			for {
				worked, err := w.ProcessOnce(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						w.logger.Error("notification pass failed", "error", err)
					}
					break
				}
				if !worked {
					break
				}
			}
		}
	}
}

// ProcessOnce handles at most one due job and reports whether one was found.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With("job_id", job.ID, "event", job.Event, "attempt", job.Attempt)
	outcome, sendErr := w.handle(ctx, job, log)
	if sendErr == nil {
		metrics.NotificationsSent.WithLabelValues(outcome).Inc()
		return true, w.queue.Complete(ctx, job.ID)
	}

	status, err := w.queue.Fail(ctx, job.ID, sendErr)
	if err != nil {
		return true, err
	}
	if status == queue.StatusDead {
		metrics.NotificationsSent.WithLabelValues("dead").Inc()
		log.Error("notification abandoned", "error", sendErr)
	} else {
		metrics.NotificationsSent.WithLabelValues("retry").Inc()
		log.Warn("notification failed, will retry", "error", sendErr)
	}
	return true, nil
}

// handle returns the outcome label for completed jobs, or an error that
// should be retried.
func (w *Worker) handle(ctx context.Context, job *queue.Job, log *slog.Logger) (string, error) {
	if job.Event != lockerlink.EventPickupReady {
		log.Warn("unknown notification event, discarding")
		return "discarded", nil
	}

	var n lockerlink.PickupReady
	if err := json.Unmarshal(job.Payload, &n); err != nil {
		log.Error("malformed notification payload, discarding", "error", err)
		return "discarded", nil
	}
	log = log.With("order_id", n.OrderID)

	order, err := w.orders.Get(ctx, n.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		log.Warn("order no longer exists, skipping pickup email")
		return "skipped", nil
	}
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if order.BillingEmail == "" {
		log.Info("order has no billing email, skipping pickup email")
		return "skipped", nil
	}

	msg, err := RenderPickupReady(order, n, w.cfg.ViewOrderURL)
	if err != nil {
		return "", err
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		return "", err
	}
	log.Info("pickup email sent")
	return "sent", nil
}
