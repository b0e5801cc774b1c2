package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"deliverycart/internal/checkout"
	"deliverycart/internal/flagstore"
	"deliverycart/internal/model"
	"deliverycart/internal/mw"
	"deliverycart/internal/retry"
	"deliverycart/internal/service"
	"deliverycart/internal/storehours"
	"deliverycart/internal/validation"
)

const testSecret = "handler-secret"

// A Wednesday evening, inside opening hours.
var testNow = time.Date(2026, 10, 14, 19, 30, 0, 0, time.UTC)

type stubConfig struct{}

func (stubConfig) StoreConfig(_ context.Context, cityID string) (checkout.StoreConfig, error) {
	if cityID == "gone" {
		return checkout.StoreConfig{}, model.ErrNotFound
	}
	hours := make([]storehours.OperatingHour, 7)
	for d := range hours {
		hours[d] = storehours.OperatingHour{DayOfWeek: d, IsOpen: true, OpenTime: "18:00", CloseTime: "23:00"}
	}
	return checkout.StoreConfig{
		Settings: model.Settings{model.SettingDeliveryFee: "5", model.SettingPixKey: "pix@cr.com"},
		Hours:    hours,
	}, nil
}

type stubProducts struct{}

func (stubProducts) Product(_ context.Context, id string) (model.Product, error) {
	if id != "hot-roll" {
		return model.Product{}, model.ErrNotFound
	}
	return model.Product{ID: id, Name: "Hot roll", Price: decimal.NewFromInt(25), Available: true}, nil
}

type stubCoupons struct{}

func (stubCoupons) Redeemable(context.Context, string, string, time.Time) (model.Coupon, error) {
	return model.Coupon{}, model.ErrCouponNotFound
}

func (stubCoupons) IncrementUsage(context.Context, string) error { return nil }

type stubOrders struct {
	mu          sync.Mutex
	failing     bool
	orders      []model.Order
	dashboardAt time.Time
}

func (s *stubOrders) CreateOrder(_ context.Context, n model.NewOrder) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return model.Order{}, errors.New("connection refused")
	}
	o := model.Order{
		ID: "order-" + n.PaymentMethod, OrderNumber: int64(len(s.orders) + 1), UserID: n.UserID,
		CustomerName: n.CustomerName, CustomerPhone: n.CustomerPhone, Items: n.Items,
		Total: n.Total, DeliveryType: n.DeliveryType, PaymentMethod: n.PaymentMethod,
		Status: model.StatusReceived,
	}
	s.orders = append(s.orders, o)
	return o, nil
}

func (s *stubOrders) ListByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubOrders) Get(_ context.Context, id string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Order{}, model.ErrNotFound
}

func (s *stubOrders) ListAll(ctx context.Context, _ string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Order(nil), s.orders...), nil
}

func (s *stubOrders) AdvanceStatus(_ context.Context, id string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.orders {
		if o.ID != id {
			continue
		}
		next, ok := model.NextStatus(o.DeliveryType, o.Status)
		if !ok {
			return model.Order{}, service.ErrFinalStatus
		}
		s.orders[i].Status = next
		return s.orders[i], nil
	}
	return model.Order{}, model.ErrNotFound
}

// Dashboard counts the stored orders; dashboardAt records the day asked for.
func (s *stubOrders) Dashboard(_ context.Context, now time.Time) (model.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dashboardAt = now
	d := model.Dashboard{ByStatus: map[string]int{}, PaymentMethods: map[string]int{}, SalesToday: decimal.Zero}
	for _, o := range s.orders {
		d.OrdersToday++
		d.SalesToday = d.SalesToday.Add(o.Total)
		d.ByStatus[o.Status]++
		d.PaymentMethods[o.PaymentMethod]++
		d.RecentOrders = append(d.RecentOrders, o)
	}
	d.Summarize()
	return d, nil
}

type stubHighlights struct {
	mu         sync.Mutex
	highlights []model.Highlight
}

func (s *stubHighlights) Highlights(context.Context) ([]model.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Highlight(nil), s.highlights...), nil
}

func (s *stubHighlights) CreateHighlight(_ context.Context, h model.Highlight) (model.Highlight, error) {
	if err := validation.Struct(h); err != nil {
		return model.Highlight{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = fmt.Sprintf("hl-%d", len(s.highlights)+1)
	s.highlights = append(s.highlights, h)
	return h, nil
}

func (s *stubHighlights) UpdateHighlight(_ context.Context, h model.Highlight) (model.Highlight, error) {
	if err := validation.Struct(h); err != nil {
		return model.Highlight{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.highlights {
		if s.highlights[i].ID == h.ID {
			s.highlights[i] = h
			return h, nil
		}
	}
	return model.Highlight{}, model.ErrNotFound
}

func (s *stubHighlights) DeleteHighlight(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.highlights {
		if s.highlights[i].ID == id {
			s.highlights = append(s.highlights[:i], s.highlights[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

type stubUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (s *stubUsers) Register(_ context.Context, login, password, name, phone string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Login == login {
			return nil, service.ErrLoginTaken
		}
	}
	u := &model.User{ID: "user-" + login, Login: login, Name: name, Phone: phone, Role: model.RoleCustomer,
		PasswordHash: []byte(password)}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubUsers) Authenticate(_ context.Context, login, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Login == login && string(u.PasswordHash) == password {
			return u, nil
		}
	}
	return nil, service.ErrInvalidCredentials
}

func (s *stubUsers) Get(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, model.ErrNotFound
}

func (s *stubUsers) Customers(context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, u := range s.users {
		if u.Role == model.RoleCustomer {
			out = append(out, *u)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) PublishOrder(kind string, _ model.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return nil
}

type fixture struct {
	orders     *stubOrders
	users      *stubUsers
	events     *recordingPublisher
	highlights *stubHighlights
	router     chi.Router
}

// storeZone is the store's clock, three hours behind UTC.
var storeZone = time.FixedZone("BRT", -3*60*60)

func newFixture() *fixture {
	f := &fixture{
		orders: &stubOrders{},
		users: &stubUsers{users: map[string]*model.User{
			"root": {ID: "root", Login: "root", Name: "Admin", Role: model.RoleAdmin},
		}},
		events:     &recordingPublisher{},
		highlights: &stubHighlights{},
	}
	clock := func() time.Time { return testNow }
	mgr := checkout.NewManager(checkout.Deps{
		Store:         flagstore.NewMemory(),
		Config:        stubConfig{},
		Products:      stubProducts{},
		Coupons:       stubCoupons{},
		Orders:        f.orders,
		Events:        f.events,
		Retry:         retry.Policy{Attempts: 2, Timeout: time.Second, Step: time.Millisecond},
		NotifyWait:    time.Second,
		NotifyTimeout: time.Second,
		Clock:         clock,
		Location:      time.UTC,
	})

	r := chi.NewRouter()
	r.Post("/api/user/register", RegisterHandler(f.users, testSecret, time.Hour))
	r.Post("/api/user/login", LoginHandler(f.users, testSecret, time.Hour))
	r.Get("/api/store/status", StoreStatusHandler(stubConfig{}, time.UTC, clock))
	r.Get("/api/highlights", HighlightsHandler(f.highlights))

	r.Group(func(r chi.Router) {
		r.Use(mw.OptionalAuth(testSecret))
		r.Post("/api/checkout", CreateCheckoutHandler(mgr))
		r.Route("/api/checkout/{id}", func(r chi.Router) {
			r.Get("/", GetCheckoutHandler(mgr))
			r.Post("/items", AddItemHandler(mgr))
			r.Patch("/items/{productID}", SetQuantityHandler(mgr))
			r.Put("/delivery", SetDeliveryHandler(mgr))
			r.Post("/coupon", ApplyCouponHandler(mgr))
			r.Put("/payment", SelectPaymentHandler(mgr))
			r.Post("/pix/instructions/dismiss", DismissPixInstructionsHandler(mgr))
			r.Post("/pix/return/dismiss", DismissPixReturnHandler(mgr))
			r.Post("/card/acknowledge", AcknowledgeCardHandler(mgr))
			r.Post("/visibility", VisibilityHandler(mgr))
			r.Post("/city", SelectCityHandler(mgr))
			r.Delete("/flags", ResetPaymentHandler(mgr))
			r.Post("/submit", SubmitHandler(mgr, f.users))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(testSecret))
		r.Get("/api/user/orders", ListOrdersHandler(f.orders))
		r.Get("/api/user/orders/{id}", GetOrderHandler(f.orders))
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin(f.users))
			r.Post("/api/admin/orders/{id}/advance", AdvanceOrderHandler(f.orders, f.events))
			r.Get("/api/admin/dashboard", DashboardHandler(f.orders, storeZone, clock))
			r.Get("/api/admin/customers", AdminCustomersHandler(f.users))
			r.Post("/api/admin/highlights", CreateHighlightHandler(f.highlights))
			r.Put("/api/admin/highlights/{id}", UpdateHighlightHandler(f.highlights))
			r.Delete("/api/admin/highlights/{id}", DeleteHighlightHandler(f.highlights))
		})
	})

	f.router = r
	return f
}
