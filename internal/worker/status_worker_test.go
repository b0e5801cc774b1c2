package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"deliverycart/internal/model"
	"deliverycart/internal/notify"
)

type fakeOrders struct {
	mu       sync.Mutex
	pending  []model.StatusChange
	notified map[int64]bool
}

func (f *fakeOrders) PendingNotifications(_ context.Context, limit int) ([]model.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StatusChange
	for _, c := range f.pending {
		if !f.notified[c.ID] && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeOrders) MarkNotified(_ context.Context, changeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified[changeID] = true
	return nil
}

func newFakeOrders(changes ...model.StatusChange) *fakeOrders {
	return &fakeOrders{pending: changes, notified: map[int64]bool{}}
}

type scriptedSender struct {
	mu   sync.Mutex
	errs map[string]error
	sent []notify.Message
}

func (s *scriptedSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.errs[msg.PhoneNumber]
}

func order(id, phone string, n int64) model.Order {
	return model.Order{ID: id, OrderNumber: n, CustomerPhone: phone, CustomerName: "Ana",
		Status: model.StatusOutForDelivery, DeliveryType: model.DeliveryTypeDelivery}
}

func change(id int64, o model.Order, status string) model.StatusChange {
	return model.StatusChange{ID: id, Status: status, Order: o}
}

func TestProcessBatch(t *testing.T) {
	tests := []struct {
		name       string
		errs       map[string]error
		wantMarked int
		wantSent   int
	}{
		{"all sent", nil, 3, 3},
		{"rejected is marked", map[string]error{"b": notify.ErrRejected}, 3, 3},
		{"transient failure retried later", map[string]error{"b": errors.New("boom")}, 2, 3},
		{"open breaker stops the batch", map[string]error{"b": gobreaker.ErrOpenState}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newFakeOrders(
				change(1, order("1", "a", 1), model.StatusPreparing),
				change(2, order("2", "b", 2), model.StatusPreparing),
				change(3, order("3", "c", 3), model.StatusPreparing),
			)
			sender := &scriptedSender{errs: tt.errs}
			w := NewStatusWorker(orders, sender, time.Hour, 10)

			marked, err := w.ProcessBatch(context.Background())
			if err != nil {
				t.Fatalf("ProcessBatch() error = %v", err)
			}
			if marked != tt.wantMarked {
				t.Errorf("marked = %d, want %d", marked, tt.wantMarked)
			}
			if len(sender.sent) != tt.wantSent {
				t.Errorf("sent = %d, want %d", len(sender.sent), tt.wantSent)
			}
		})
	}
}

func TestProcessBatch_Message(t *testing.T) {
	orders := newFakeOrders(change(1, order("1", "5511", 7), model.StatusPreparing))
	sender := &scriptedSender{}
	w := NewStatusWorker(orders, sender, time.Hour, 10)

	if _, err := w.ProcessBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	msg := sender.sent[0]
	if msg.WorkflowType != notify.WorkflowStatusChange || msg.PhoneNumber != "5511" {
		t.Fatalf("message = %+v", msg)
	}
	data, ok := msg.MessageData.(notify.StatusData)
	if !ok || data.OrderNumber != "C&R07" || data.NewStatus != model.StatusPreparing {
		t.Errorf("data = %+v", msg.MessageData)
	}
	if !orders.notified[1] {
		t.Error("change not marked notified")
	}

	// Nothing left: a second pass sends nothing.
	if n, _ := w.ProcessBatch(context.Background()); n != 0 || len(sender.sent) != 1 {
		t.Errorf("second pass marked %d, sent %d", n, len(sender.sent))
	}
}

func TestProcessBatch_EveryChangeInOrder(t *testing.T) {
	o := order("1", "a", 1)
	orders := newFakeOrders(
		change(1, o, model.StatusPreparing),
		change(2, o, model.StatusReadyForCourier),
		change(3, o, model.StatusOutForDelivery),
	)
	sender := &scriptedSender{}
	w := NewStatusWorker(orders, sender, time.Hour, 10)

	if n, err := w.ProcessBatch(context.Background()); err != nil || n != 3 {
		t.Fatalf("ProcessBatch() = %d, %v", n, err)
	}
	want := []string{model.StatusPreparing, model.StatusReadyForCourier, model.StatusOutForDelivery}
	for i, msg := range sender.sent {
		if got := msg.MessageData.(notify.StatusData).NewStatus; got != want[i] {
			t.Errorf("message %d status = %q, want %q", i, got, want[i])
		}
	}
}

func TestProcessBatch_FailedChangeHoldsLaterOnes(t *testing.T) {
	held, other := order("1", "a", 1), order("2", "b", 2)
	orders := newFakeOrders(
		change(1, held, model.StatusPreparing),
		change(2, other, model.StatusPreparing),
		change(3, held, model.StatusReadyForCourier),
	)
	sender := &scriptedSender{errs: map[string]error{"a": errors.New("boom")}}
	w := NewStatusWorker(orders, sender, time.Hour, 10)

	n, err := w.ProcessBatch(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ProcessBatch() = %d, %v", n, err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent = %d, want the failed change and the other order only", len(sender.sent))
	}
	if orders.notified[1] || orders.notified[3] || !orders.notified[2] {
		t.Errorf("notified = %v", orders.notified)
	}

	sender.errs = nil
	if n, _ := w.ProcessBatch(context.Background()); n != 2 {
		t.Errorf("retry pass marked %d, want 2", n)
	}
	last := sender.sent[len(sender.sent)-1].MessageData.(notify.StatusData)
	if last.NewStatus != model.StatusReadyForCourier {
		t.Errorf("last status sent = %q", last.NewStatus)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	orders := newFakeOrders(change(1, order("1", "a", 1), model.StatusPreparing))
	w := NewStatusWorker(orders, &scriptedSender{}, 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		orders.mu.Lock()
		n := len(orders.notified)
		orders.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never processed the pending order")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
