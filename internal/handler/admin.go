package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"deliverycart/internal/checkout"
	"deliverycart/internal/events"
	"deliverycart/internal/logging"
	"deliverycart/internal/model"
	"deliverycart/internal/storehours"
)

type ProductAdmin interface {
	MenuSource
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type HighlightAdmin interface {
	HighlightLister
	CreateHighlight(ctx context.Context, h model.Highlight) (model.Highlight, error)
	UpdateHighlight(ctx context.Context, h model.Highlight) (model.Highlight, error)
	DeleteHighlight(ctx context.Context, id string) error
}

type CityAdmin interface {
	CityLister
	CreateCity(ctx context.Context, c model.City) (model.City, error)
	SetCityActive(ctx context.Context, id string, active bool) error
	DeleteCity(ctx context.Context, id string) error
}

type CouponAdmin interface {
	List(ctx context.Context) ([]model.Coupon, error)
	Create(ctx context.Context, c model.Coupon) (model.Coupon, error)
	Approve(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type SettingsAdmin interface {
	Settings(ctx context.Context) (model.Settings, error)
	SetSetting(ctx context.Context, key, value string) error
	Hours(ctx context.Context) ([]storehours.OperatingHour, error)
	SetHours(ctx context.Context, hours []storehours.OperatingHour) error
}

type OrderAdmin interface {
	ListAll(ctx context.Context, status string) ([]model.Order, error)
	AdvanceStatus(ctx context.Context, id string) (model.Order, error)
}

type RoleAdmin interface {
	SetRole(ctx context.Context, id, role string) error
}

type CustomerLister interface {
	Customers(ctx context.Context) ([]model.User, error)
}

type DashboardSource interface {
	Dashboard(ctx context.Context, now time.Time) (model.Dashboard, error)
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Products

func AdminListProductsHandler(svc ProductAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.Menu(r.Context(), true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(products))
	}
}

func CreateProductHandler(svc ProductAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p model.Product
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, r, err)
			return
		}
		created, err := svc.CreateProduct(r.Context(), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func UpdateProductHandler(svc ProductAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p model.Product
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, r, err)
			return
		}
		p.ID = chi.URLParam(r, "id")
		updated, err := svc.UpdateProduct(r.Context(), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func DeleteProductHandler(svc ProductAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noContent(w, r, svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")))
	}
}

// Highlights

func CreateHighlightHandler(svc HighlightAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var h model.Highlight
		if err := decodeJSON(r, &h); err != nil {
			writeError(w, r, err)
			return
		}
		created, err := svc.CreateHighlight(r.Context(), h)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func UpdateHighlightHandler(svc HighlightAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var h model.Highlight
		if err := decodeJSON(r, &h); err != nil {
			writeError(w, r, err)
			return
		}
		h.ID = chi.URLParam(r, "id")
		updated, err := svc.UpdateHighlight(r.Context(), h)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func DeleteHighlightHandler(svc HighlightAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noContent(w, r, svc.DeleteHighlight(r.Context(), chi.URLParam(r, "id")))
	}
}

// Cities

func AdminListCitiesHandler(svc CityAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cities, err := svc.Cities(r.Context(), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cities))
	}
}

func CreateCityHandler(svc CityAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c model.City
		if err := decodeJSON(r, &c); err != nil {
			writeError(w, r, err)
			return
		}
		created, err := svc.CreateCity(r.Context(), c)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func SetCityActiveHandler(svc CityAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		noContent(w, r, svc.SetCityActive(r.Context(), chi.URLParam(r, "id"), *req.Active))
	}
}

func DeleteCityHandler(svc CityAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noContent(w, r, svc.DeleteCity(r.Context(), chi.URLParam(r, "id")))
	}
}

// Coupons

type newCouponRequest struct {
	Name       string          `json:"name" validate:"required"`
	Code       string          `json:"code" validate:"required,max=32"`
	Discount   decimal.Decimal `json:"discount" validate:"gt=0,lte=100"`
	Type       string          `json:"type" validate:"required,oneof=birthday loyalty promotion"`
	ValidFrom  string          `json:"valid_from" validate:"required,datetime=2006-01-02"`
	ValidTo    string          `json:"valid_to" validate:"required,datetime=2006-01-02"`
	Active     bool            `json:"active"`
	UsageLimit *int            `json:"usage_limit" validate:"omitempty,min=1"`
	UserID     *string         `json:"user_id" validate:"omitempty,uuid"`
}

func (req newCouponRequest) coupon() model.Coupon {
	from, _ := time.Parse("2006-01-02", req.ValidFrom)
	to, _ := time.Parse("2006-01-02", req.ValidTo)
	return model.Coupon{
		Name:       strings.TrimSpace(req.Name),
		Code:       req.Code,
		Discount:   req.Discount,
		Type:       req.Type,
		ValidFrom:  from,
		ValidTo:    to,
		Active:     req.Active,
		UsageLimit: req.UsageLimit,
		UserID:     req.UserID,
	}
}

func AdminListCouponsHandler(svc CouponAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coupons, err := svc.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(coupons))
	}
}

func CreateCouponHandler(svc CouponAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newCouponRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		created, err := svc.Create(r.Context(), req.coupon())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func ApproveCouponHandler(svc CouponAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noContent(w, r, svc.Approve(r.Context(), chi.URLParam(r, "id")))
	}
}

func SetCouponActiveHandler(svc CouponAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		noContent(w, r, svc.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active))
	}
}

func DeleteCouponHandler(svc CouponAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noContent(w, r, svc.Delete(r.Context(), chi.URLParam(r, "id")))
	}
}

// Settings and hours

type settingRequest struct {
	Value string `json:"value"`
}

type hoursRequest struct {
	Hours []storehours.OperatingHour `json:"hours" validate:"required,min=1,max=7,dive"`
}

func GetSettingsHandler(svc SettingsAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := svc.Settings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func SetSettingHandler(svc SettingsAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		noContent(w, r, svc.SetSetting(r.Context(), chi.URLParam(r, "key"), strings.TrimSpace(req.Value)))
	}
}

func GetHoursHandler(svc SettingsAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours, err := svc.Hours(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, hoursRequest{Hours: nonNil(hours)})
	}
}

func SetHoursHandler(svc SettingsAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hoursRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		noContent(w, r, svc.SetHours(r.Context(), req.Hours))
	}
}

// Orders and users

func AdminListOrdersHandler(svc OrderAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListAll(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponses(orders))
	}
}

// AdvanceOrderHandler moves an order to its next status and tells the live
// feed. The customer is notified by the status worker.
func AdvanceOrderHandler(svc OrderAdmin, pub checkout.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := svc.AdvanceStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := pub.PublishOrder(events.KindStatusChanged, o); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("could not publish status change")
		}
		logging.Ctx(r.Context()).Info().Int64("order_number", o.OrderNumber).Str("status", o.Status).Msg("order status advanced")
		writeJSON(w, http.StatusOK, orderResponse{Order: o, DisplayNumber: o.DisplayNumber()})
	}
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer admin"`
}

func SetRoleHandler(svc RoleAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		noContent(w, r, svc.SetRole(r.Context(), chi.URLParam(r, "id"), req.Role))
	}
}

func AdminCustomersHandler(svc CustomerLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customers, err := svc.Customers(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(customers))
	}
}

// DashboardHandler reports the order summary for the store's current day.
func DashboardHandler(svc DashboardSource, loc *time.Location, clock func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := svc.Dashboard(r.Context(), clock().In(loc))
		if err != nil {
			writeError(w, r, err)
			return
		}
		dash.TopProducts = nonNil(dash.TopProducts)
		writeJSON(w, http.StatusOK, dashboardResponse{
			Dashboard:    dash,
			RecentOrders: toOrderResponses(dash.RecentOrders),
		})
	}
}

type dashboardResponse struct {
	model.Dashboard
	RecentOrders []orderResponse `json:"recent_orders"`
}
