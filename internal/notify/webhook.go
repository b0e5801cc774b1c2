// Package notify delivers order notifications to the messaging router.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"deliverycart/internal/logging"
	"deliverycart/internal/metrics"
)

var (
	// ErrRejected is returned for 4xx answers; the message will not be
	// accepted on a retry either.
	ErrRejected = errors.New("webhook rejected message")
	ErrSlow     = errors.New("notification still in flight")
)

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Noop drops every message. Used when no webhook is configured.
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }

type Webhook struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[struct{}]
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	settings := gobreaker.Settings{
		Name:        "messaging-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	_, err := w.cb.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, msg)
	})
	return err
}

func (w *Webhook) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d, body: %s", ErrRejected, resp.StatusCode, string(b))
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(b))
	}
}

// Dispatch sends msg on its own goroutine and waits at most wait for the
// outcome. A send that outlives wait keeps running, bounded by
// sendTimeout, and Dispatch returns ErrSlow. Cancelling ctx does not abort
// a send already started.
func Dispatch(ctx context.Context, s Sender, msg Message, wait, sendTimeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		err := s.Send(sctx, msg)
		outcome := "sent"
		if err != nil {
			outcome = "failed"
			logging.Warn().Err(err).Str("workflow", msg.WorkflowType).Msg("notification failed")
		}
		metrics.Notifications.WithLabelValues(msg.WorkflowType, outcome).Inc()
		done <- err
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrSlow
	}
}
