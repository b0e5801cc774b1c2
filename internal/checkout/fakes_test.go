package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"deliverycart/internal/flagstore"
	"deliverycart/internal/model"
	"deliverycart/internal/notify"
	"deliverycart/internal/retry"
	"deliverycart/internal/storehours"
)

var errUnavailable = errors.New("service unavailable")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// A Wednesday evening, inside opening hours.
var openNow = time.Date(2026, 10, 14, 19, 30, 0, 0, time.UTC)

func everyDay(open, close string) []storehours.OperatingHour {
	hours := make([]storehours.OperatingHour, 7)
	for d := range hours {
		hours[d] = storehours.OperatingHour{DayOfWeek: d, IsOpen: true, OpenTime: open, CloseTime: close}
	}
	return hours
}

type fakeConfig struct {
	mu       sync.Mutex
	settings model.Settings
	hours    []storehours.OperatingHour
	fees     map[string]string
	blocked  map[string]chan struct{}
	started  chan string
	calls    int
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		settings: model.Settings{model.SettingDeliveryFee: "5", model.SettingPixKey: "pix@cr.com"},
		hours:    everyDay("18:00", "23:00"),
	}
}

func (f *fakeConfig) StoreConfig(ctx context.Context, cityID string) (StoreConfig, error) {
	f.mu.Lock()
	f.calls++
	block := f.blocked[cityID]
	settings := model.Settings{}
	for k, v := range f.settings {
		settings[k] = v
	}
	if fee, ok := f.fees[cityID]; ok {
		settings[model.SettingDeliveryFee] = fee
	}
	hours := f.hours
	f.mu.Unlock()

	if cityID == "nowhere" {
		return StoreConfig{}, model.ErrNotFound
	}
	if block != nil {
		if f.started != nil {
			f.started <- cityID
		}
		select {
		case <-block:
		case <-ctx.Done():
			return StoreConfig{}, ctx.Err()
		}
	}
	return StoreConfig{Settings: settings, Hours: hours}, nil
}

type fakeProducts map[string]model.Product

func (f fakeProducts) Product(_ context.Context, id string) (model.Product, error) {
	p, ok := f[id]
	if !ok || !p.Available {
		return model.Product{}, model.ErrNotFound
	}
	return p, nil
}

type fakeCoupons struct {
	mu          sync.Mutex
	coupons     map[string]model.Coupon
	incremented []string
}

func (f *fakeCoupons) Redeemable(_ context.Context, code, userID string, now time.Time) (model.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[code]
	if !ok {
		return model.Coupon{}, model.ErrCouponNotFound
	}
	if c.UserID != nil && *c.UserID != userID {
		return model.Coupon{}, model.ErrCouponNotAllowed
	}
	if now.After(c.ValidTo) {
		return model.Coupon{}, model.ErrCouponExpired
	}
	return c, nil
}

func (f *fakeCoupons) IncrementUsage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incremented = append(f.incremented, id)
	return nil
}

type fakeOrders struct {
	mu       sync.Mutex
	calls    int
	failures int
	last     model.NewOrder
	next     int64
}

func (f *fakeOrders) CreateOrder(_ context.Context, o model.NewOrder) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return model.Order{}, errUnavailable
	}
	f.last = o
	f.next++
	return model.Order{
		ID:            "order-id",
		OrderNumber:   f.next,
		UserID:        o.UserID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Total:         o.Total,
		DeliveryType:  o.DeliveryType,
		PaymentMethod: o.PaymentMethod,
		Status:        model.StatusReceived,
	}, nil
}

func (f *fakeOrders) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

type recordingEvents struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingEvents) PublishOrder(kind string, _ model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return nil
}

// brokenStore fails writes of keys ending in suffix while broken is set.
type brokenStore struct {
	flagstore.Store
	suffix string
	broken atomic.Bool
}

var errStoreDown = errors.New("store down")

func (b *brokenStore) Set(ctx context.Context, key, value string) error {
	if b.broken.Load() && strings.HasSuffix(key, b.suffix) {
		return errStoreDown
	}
	return b.Store.Set(ctx, key, value)
}

type harness struct {
	store    *flagstore.Memory
	config   *fakeConfig
	coupons  *fakeCoupons
	orders   *fakeOrders
	notifier *recordingNotifier
	events   *recordingEvents
	clock    time.Time
	mgr      *Manager
}

func newHarness() *harness {
	h := &harness{
		store:    flagstore.NewMemory(),
		config:   newFakeConfig(),
		coupons:  &fakeCoupons{coupons: map[string]model.Coupon{}},
		orders:   &fakeOrders{},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		clock:    openNow,
	}
	h.mgr = NewManager(h.deps())
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Store:  h.store,
		Config: h.config,
		Products: fakeProducts{
			"hot-roll": {ID: "hot-roll", Name: "Hot roll", Price: dec("25"), Available: true},
			"temaki":   {ID: "temaki", Name: "Temaki", Price: dec("32.5"), Available: true},
			"sold-out": {ID: "sold-out", Name: "Sashimi", Price: dec("40"), Available: false},
		},
		Coupons:       h.coupons,
		Orders:        h.orders,
		Notifier:      h.notifier,
		Events:        h.events,
		Retry:         retry.Policy{Attempts: 3, Timeout: time.Second, Step: time.Millisecond},
		NotifyWait:    time.Second,
		NotifyTimeout: time.Second,
		Clock:         func() time.Time { return h.clock },
		Location:      time.UTC,
	}
}

// restart simulates a process restart: a new manager over the same store.
func (h *harness) restart() {
	h.mgr = NewManager(h.deps())
}

func (h *harness) flag(sessionID, key string) (string, bool) {
	v, ok, _ := h.store.Get(context.Background(), "checkout:"+sessionID+":"+key)
	return v, ok
}

var customer = Customer{UserID: "user-1", Name: "Ana", Phone: "5511999990000"}

// expiringStore records which keys were refreshed.
type expiringStore struct {
	flagstore.Store
	mu        sync.Mutex
	refreshed map[string]int
}

func (e *expiringStore) Refresh(_ context.Context, keys ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refreshed == nil {
		e.refreshed = make(map[string]int)
	}
	for _, k := range keys {
		e.refreshed[k]++
	}
	return nil
}

func (e *expiringStore) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshed[key]
}
