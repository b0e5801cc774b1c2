package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"deliverycart/internal/model"
	"deliverycart/internal/mw"
)

type viewResponse struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Totals    struct {
		Total decimal.Decimal `json:"total"`
	} `json:"totals"`
	Payment struct {
		Method           string `json:"method"`
		Locked           bool   `json:"locked"`
		PixReturnPending bool   `json:"pix_return_pending"`
	} `json:"payment"`
	RedirectURL string `json:"redirect_url"`
}

type receiptResponse struct {
	Order    model.Order  `json:"order"`
	Checkout viewResponse `json:"checkout"`
}

type errorBody struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Checkout *viewResponse `json:"checkout"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, status, rec.Body.String())
	}
}

func (f *fixture) register(t *testing.T, login string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/user/register", "", map[string]string{
		"login": login, "password": "s3cret!", "name": "Ana", "phone": "5511999990000",
	})
	expect(t, rec, http.StatusOK)
	return decode[tokenResponse](t, rec).Token
}

func (f *fixture) newCheckout(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/checkout", "", nil)
	expect(t, rec, http.StatusCreated)
	id := decode[viewResponse](t, rec).SessionID
	if id == "" {
		t.Fatal("no session id")
	}

	rec = f.do(t, http.MethodPost, "/api/checkout/"+id+"/items", "", map[string]any{"product_id": "hot-roll", "quantity": 2})
	expect(t, rec, http.StatusOK)
	rec = f.do(t, http.MethodPut, "/api/checkout/"+id+"/delivery", "", map[string]any{"delivery_type": "pickup"})
	expect(t, rec, http.StatusOK)
	if total := decode[viewResponse](t, rec).Totals.Total; !total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("pickup total = %s, want 50", total)
	}
	return id
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture()
	f.register(t, "ana")

	rec := f.do(t, http.MethodPost, "/api/user/register", "", map[string]string{"login": "ana", "password": "another"})
	expect(t, rec, http.StatusConflict)

	rec = f.do(t, http.MethodPost, "/api/user/register", "", map[string]string{"login": "bo", "password": "123"})
	expect(t, rec, http.StatusBadRequest)

	rec = f.do(t, http.MethodPost, "/api/user/login", "", map[string]string{"login": "ana", "password": "wrong"})
	expect(t, rec, http.StatusUnauthorized)

	rec = f.do(t, http.MethodPost, "/api/user/login", "", map[string]string{"login": "ana", "password": "s3cret!"})
	expect(t, rec, http.StatusOK)
	if rec.Header().Get("Authorization") == "" {
		t.Error("login did not set the Authorization header")
	}
}

func TestCheckout_PixFlowOverHTTP(t *testing.T) {
	f := newFixture()
	token := f.register(t, "ana")
	id := f.newCheckout(t)
	base := "/api/checkout/" + id

	rec := f.do(t, http.MethodPost, base+"/submit", "", nil)
	expect(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorBody](t, rec).Code; got != "not_authenticated" {
		t.Fatalf("anonymous code = %q", got)
	}
	rec = f.do(t, http.MethodPost, base+"/submit", token, nil)
	expect(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorBody](t, rec).Code; got != "payment_method_required" {
		t.Fatalf("code = %q", got)
	}

	rec = f.do(t, http.MethodPut, base+"/payment", "", map[string]any{"method": "pix"})
	expect(t, rec, http.StatusOK)
	if got := decode[viewResponse](t, rec).Prompt; got != "pix_instructions" {
		t.Fatalf("prompt = %q", got)
	}

	rec = f.do(t, http.MethodPost, base+"/submit", token, nil)
	expect(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorBody](t, rec).Code; got != "pix_instructions_required" {
		t.Fatalf("code = %q", got)
	}

	rec = f.do(t, http.MethodPost, base+"/pix/instructions/dismiss", "", nil)
	expect(t, rec, http.StatusOK)
	if v := decode[viewResponse](t, rec); !v.Payment.PixReturnPending || !v.Payment.Locked {
		t.Fatalf("payment = %+v", v.Payment)
	}

	rec = f.do(t, http.MethodPost, base+"/items", "", map[string]any{"product_id": "hot-roll", "quantity": 1})
	expect(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorBody](t, rec).Code; got != "cart_locked" {
		t.Fatalf("code = %q", got)
	}

	expect(t, f.do(t, http.MethodPost, base+"/visibility", "", map[string]any{"visible": false}), http.StatusOK)
	rec = f.do(t, http.MethodPost, base+"/visibility", "", map[string]any{"visible": true})
	expect(t, rec, http.StatusOK)
	if got := decode[viewResponse](t, rec).Prompt; got != "pix_return_confirmation" {
		t.Fatalf("prompt = %q", got)
	}
	expect(t, f.do(t, http.MethodPost, base+"/pix/return/dismiss", "", nil), http.StatusOK)

	rec = f.do(t, http.MethodPost, base+"/submit", token, nil)
	expect(t, rec, http.StatusCreated)
	receipt := decode[receiptResponse](t, rec)
	if receipt.Order.OrderNumber != 1 || receipt.Order.CustomerName != "Ana" {
		t.Fatalf("order = %+v", receipt.Order)
	}
	if !receipt.Checkout.Totals.Total.IsZero() || receipt.Checkout.Payment.Method != "" {
		t.Errorf("session after submit = %+v", receipt.Checkout)
	}
	if len(f.events.kinds) != 1 || f.events.kinds[0] != "order_created" {
		t.Errorf("events = %v", f.events.kinds)
	}

	rec = f.do(t, http.MethodGet, "/api/user/orders", token, nil)
	expect(t, rec, http.StatusOK)
	if orders := decode[[]orderResponse](t, rec); len(orders) != 1 || orders[0].DisplayNumber != "C&R01" {
		t.Errorf("orders = %+v", orders)
	}
}

func TestCheckout_CardWarningReturnedWithRejection(t *testing.T) {
	f := newFixture()
	token := f.register(t, "ana")
	base := "/api/checkout/" + f.newCheckout(t)

	expect(t, f.do(t, http.MethodPut, base+"/payment", "", map[string]any{"method": "card"}), http.StatusOK)

	rec := f.do(t, http.MethodPost, base+"/submit", token, nil)
	expect(t, rec, http.StatusUnprocessableEntity)
	body := decode[errorBody](t, rec)
	if body.Code != "card_warning_required" || body.Checkout == nil || body.Checkout.Prompt != "card_warning" {
		t.Fatalf("body = %+v", body)
	}

	rec = f.do(t, http.MethodPost, base+"/card/acknowledge", "", nil)
	expect(t, rec, http.StatusOK)
	if got := decode[viewResponse](t, rec).RedirectURL; got != model.DefaultCardPaymentLink {
		t.Fatalf("redirect = %q", got)
	}

	expect(t, f.do(t, http.MethodPost, base+"/submit", token, nil), http.StatusCreated)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	f := newFixture()
	token := f.register(t, "ana")
	base := "/api/checkout/" + f.newCheckout(t)
	expect(t, f.do(t, http.MethodPut, base+"/payment", "", map[string]any{"method": "cash"}), http.StatusOK)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/api/checkout/7b0c3f7e-2a51-4b43-9d0f-6f1b0f0e9a11", nil, http.StatusNotFound, "not_found"},
		{"malformed session id", http.MethodGet, "/api/checkout/nope", nil, http.StatusNotFound, "not_found"},
		{"missing body", http.MethodPost, base + "/items", nil, http.StatusBadRequest, "invalid_request"},
		{"zero quantity", http.MethodPost, base + "/items", map[string]any{"product_id": "hot-roll", "quantity": 0}, http.StatusBadRequest, "invalid_request"},
		{"unknown product", http.MethodPost, base + "/items", map[string]any{"product_id": "ghost", "quantity": 1}, http.StatusUnprocessableEntity, "product_unavailable"},
		{"bad delivery type", http.MethodPut, base + "/delivery", map[string]any{"delivery_type": "drone"}, http.StatusUnprocessableEntity, "invalid_delivery_type"},
		{"bad method", http.MethodPut, base + "/payment", map[string]any{"method": "bitcoin"}, http.StatusUnprocessableEntity, "invalid_payment_method"},
		{"unknown coupon", http.MethodPost, base + "/coupon", map[string]any{"code": "NOPE"}, http.StatusUnprocessableEntity, "coupon_invalid"},
		{"inactive city", http.MethodPost, base + "/city", map[string]any{"city_id": "gone"}, http.StatusUnprocessableEntity, "city_unavailable"},
		{"visibility required", http.MethodPost, base + "/visibility", map[string]any{}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, token, tt.body)
			expect(t, rec, tt.status)
			if got := decode[errorBody](t, rec).Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}

	f.orders.failing = true
	rec := f.do(t, http.MethodPost, base+"/submit", token, nil)
	expect(t, rec, http.StatusServiceUnavailable)
	f.orders.failing = false
	expect(t, f.do(t, http.MethodPost, base+"/submit", token, nil), http.StatusCreated)
}

func TestStoreStatus(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/store/status", "", nil)
	expect(t, rec, http.StatusOK)
	st := decode[storeStatus](t, rec)
	if !st.IsOpenNow || !st.CanPlaceOrder || len(st.Hours) != 7 {
		t.Errorf("status = %+v", st)
	}

	expect(t, f.do(t, http.MethodGet, "/api/store/status?city_id=gone", "", nil), http.StatusNotFound)
}

func TestOrders_OwnershipAndAdmin(t *testing.T) {
	f := newFixture()
	token := f.register(t, "ana")
	base := "/api/checkout/" + f.newCheckout(t)
	expect(t, f.do(t, http.MethodPut, base+"/payment", "", map[string]any{"method": "cash"}), http.StatusOK)
	expect(t, f.do(t, http.MethodPost, base+"/submit", token, nil), http.StatusCreated)
	orderID := f.orders.orders[0].ID

	other := f.register(t, "bia")
	expect(t, f.do(t, http.MethodGet, "/api/user/orders/"+orderID, other, nil), http.StatusNotFound)
	expect(t, f.do(t, http.MethodGet, "/api/user/orders", other, nil), http.StatusNoContent)
	expect(t, f.do(t, http.MethodGet, "/api/user/orders/"+orderID, token, nil), http.StatusOK)

	expect(t, f.do(t, http.MethodPost, "/api/admin/orders/"+orderID+"/advance", token, nil), http.StatusForbidden)

	admin, err := mw.IssueToken(testSecret, "root", model.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := f.do(t, http.MethodPost, "/api/admin/orders/"+orderID+"/advance", admin, nil)
	expect(t, rec, http.StatusOK)
	if got := decode[orderResponse](t, rec).Status; got != model.StatusPreparing {
		t.Errorf("status = %q", got)
	}
	if last := f.events.kinds[len(f.events.kinds)-1]; last != "order_status_changed" {
		t.Errorf("last event = %q", last)
	}

	for i := 0; i < 2; i++ {
		expect(t, f.do(t, http.MethodPost, "/api/admin/orders/"+orderID+"/advance", admin, nil), http.StatusOK)
	}
	rec = f.do(t, http.MethodPost, "/api/admin/orders/"+orderID+"/advance", admin, nil)
	expect(t, rec, http.StatusConflict)
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := mw.IssueToken(testSecret, "root", model.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestHighlights_AdminCRUD(t *testing.T) {
	f := newFixture()
	admin := adminToken(t)
	customer := f.register(t, "ana")

	roll := map[string]any{"name": "Hot roll", "price": "25", "image_url": "https://cdn.cr.com/hot.jpg", "border_color": "#dc2626"}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"customer cannot create", http.MethodPost, "/api/admin/highlights", customer, roll, http.StatusForbidden},
		{"create", http.MethodPost, "/api/admin/highlights", admin, roll, http.StatusCreated},
		{"missing image", http.MethodPost, "/api/admin/highlights", admin, map[string]any{"name": "Temaki"}, http.StatusUnprocessableEntity},
		{"negative position", http.MethodPost, "/api/admin/highlights", admin,
			map[string]any{"name": "Temaki", "image_url": "https://cdn.cr.com/t.jpg", "order_index": -1}, http.StatusUnprocessableEntity},
		{"update", http.MethodPut, "/api/admin/highlights/hl-1", admin,
			map[string]any{"name": "Hot roll", "price": "27", "image_url": "https://cdn.cr.com/hot.jpg", "order_index": 2}, http.StatusOK},
		{"update unknown", http.MethodPut, "/api/admin/highlights/nope", admin, roll, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, "/api/admin/highlights/nope", admin, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expect(t, f.do(t, tt.method, tt.path, tt.token, tt.body), tt.want)
		})
	}

	rec := f.do(t, http.MethodGet, "/api/highlights", "", nil)
	expect(t, rec, http.StatusOK)
	list := decode[[]model.Highlight](t, rec)
	if len(list) != 1 || !list[0].Price.Equal(decimal.NewFromInt(27)) || list[0].OrderIndex != 2 {
		t.Fatalf("public list = %+v", list)
	}

	expect(t, f.do(t, http.MethodDelete, "/api/admin/highlights/hl-1", admin, nil), http.StatusNoContent)
	rec = f.do(t, http.MethodGet, "/api/highlights", "", nil)
	expect(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != "[]\n" && body != "[]" {
		t.Errorf("empty list body = %q", body)
	}
}

func TestAdminCustomers(t *testing.T) {
	f := newFixture()
	token := f.register(t, "ana")
	f.register(t, "bia")

	expect(t, f.do(t, http.MethodGet, "/api/admin/customers", token, nil), http.StatusForbidden)

	rec := f.do(t, http.MethodGet, "/api/admin/customers", adminToken(t), nil)
	expect(t, rec, http.StatusOK)
	customers := decode[[]map[string]any](t, rec)
	if len(customers) != 2 {
		t.Fatalf("customers = %v, want ana and bia only", customers)
	}
	for _, c := range customers {
		if c["role"] != model.RoleCustomer {
			t.Errorf("listed %v", c)
		}
		if _, leaked := c["password_hash"]; leaked {
			t.Error("password hash in response")
		}
	}
}

type dashboardBody struct {
	OrdersToday    int                        `json:"orders_today"`
	PaymentMethods map[string]int             `json:"payment_methods"`
	PaymentShares  map[string]decimal.Decimal `json:"payment_shares"`
	TopProducts    []model.ProductSales       `json:"top_products"`
	RecentOrders   []orderResponse            `json:"recent_orders"`
}

func TestAdminDashboard(t *testing.T) {
	f := newFixture()
	token := f.register(t, "ana")
	for i, method := range []string{"pix", "cash", "cash"} {
		f.orders.orders = append(f.orders.orders, model.Order{
			ID: fmt.Sprintf("order-%d", i), OrderNumber: int64(i + 1), UserID: "user-ana",
			Total: decimal.NewFromInt(30), PaymentMethod: method, Status: model.StatusReceived,
		})
	}

	expect(t, f.do(t, http.MethodGet, "/api/admin/dashboard", token, nil), http.StatusForbidden)

	rec := f.do(t, http.MethodGet, "/api/admin/dashboard", adminToken(t), nil)
	expect(t, rec, http.StatusOK)
	body := decode[dashboardBody](t, rec)

	if body.OrdersToday != 3 || body.PaymentMethods["cash"] != 2 {
		t.Errorf("counts = %d orders, %v", body.OrdersToday, body.PaymentMethods)
	}
	if got := body.PaymentShares["pix"]; !got.Equal(decimal.RequireFromString("33.3")) {
		t.Errorf("pix share = %s", got)
	}
	if body.TopProducts == nil {
		t.Error("top_products should be an empty list, not null")
	}
	if len(body.RecentOrders) != 3 || body.RecentOrders[0].DisplayNumber != "C&R01" {
		t.Errorf("recent orders = %+v", body.RecentOrders)
	}
	if at := f.orders.dashboardAt; at.Location() != storeZone || !at.Equal(testNow) {
		t.Errorf("dashboard asked for %v", at)
	}
}
