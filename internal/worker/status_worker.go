package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"deliverycart/internal/logging"
	"deliverycart/internal/metrics"
	"deliverycart/internal/model"
	"deliverycart/internal/notify"
)

// OrderSource is the part of the order store the worker polls.
type OrderSource interface {
	PendingNotifications(ctx context.Context, limit int) ([]model.StatusChange, error)
	MarkNotified(ctx context.Context, changeID int64) error
}

// StatusWorker tells customers about every status change made on the admin
// board, one message per change and in order for each order. A change is
// marked notified only after the webhook accepted or permanently rejected
// the message, so changes survive restarts.
type StatusWorker struct {
	orders      OrderSource
	sender      notify.Sender
	interval    time.Duration
	batchSize   int
	sendTimeout time.Duration
}

func NewStatusWorker(orders OrderSource, sender notify.Sender, interval time.Duration, batchSize int) *StatusWorker {
	return &StatusWorker{
		orders:      orders,
		sender:      sender,
		interval:    interval,
		batchSize:   batchSize,
		sendTimeout: 15 * time.Second,
	}
}

// Serve runs until ctx is done.
func (w *StatusWorker) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", w.interval).Msg("starting status notification worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("status notification worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				logging.Error().Err(err).Msg("batch processing failed")
			}
		}
	}
}

func (w *StatusWorker) String() string { return "status-notifier" }

// ProcessBatch forwards one batch and reports how many changes were marked.
func (w *StatusWorker) ProcessBatch(ctx context.Context) (int, error) {
	changes, err := w.orders.PendingNotifications(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending notifications: %w", err)
	}

	// Orders with an unsent change; their later changes wait for it.
	held := make(map[string]bool)
	marked := 0
	for _, c := range changes {
		o := c.Notice()
		if held[o.ID] {
			continue
		}

		msg := notify.NewStatusMessage(o)
		sctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
		err := w.sender.Send(sctx, msg)
		cancel()

		switch {
		case err == nil:
			metrics.Notifications.WithLabelValues(msg.WorkflowType, "sent").Inc()
		case errors.Is(err, notify.ErrRejected):
			metrics.Notifications.WithLabelValues(msg.WorkflowType, "rejected").Inc()
			logging.Warn().Err(err).Int64("order_number", o.OrderNumber).Msg("status notification rejected, not retrying")
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.Notifications.WithLabelValues(msg.WorkflowType, "failed").Inc()
			logging.Warn().Err(err).Msg("messaging webhook unavailable, postponing batch")
			return marked, nil
		default:
			metrics.Notifications.WithLabelValues(msg.WorkflowType, "failed").Inc()
			logging.Error().Err(err).Int64("order_number", o.OrderNumber).Msg("failed to send status notification")
			held[o.ID] = true
			continue
		}

		if err := w.orders.MarkNotified(ctx, c.ID); err != nil {
			logging.Error().Err(err).Int64("order_number", o.OrderNumber).Msg("failed to mark status change notified")
			held[o.ID] = true
			continue
		}
		marked++
		logging.Info().Int64("order_number", o.OrderNumber).Str("status", o.Status).Msg("status notification sent")
	}

	return marked, nil
}
