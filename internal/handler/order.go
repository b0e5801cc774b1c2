package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deliverycart/internal/model"
	"deliverycart/internal/mw"
)

type UserOrders interface {
	ListByUser(ctx context.Context, userID string) ([]model.Order, error)
	Get(ctx context.Context, id string) (model.Order, error)
}

type UsableCoupons interface {
	ListUsable(ctx context.Context, userID string, now time.Time) ([]model.Coupon, error)
}

type orderResponse struct {
	model.Order
	DisplayNumber string `json:"display_number"`
}

func toOrderResponses(orders []model.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = orderResponse{Order: o, DisplayNumber: o.DisplayNumber()}
	}
	return out
}

func ListOrdersHandler(orderSvc UserOrders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := mw.UserID(r.Context())

		orders, err := orderSvc.ListByUser(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if len(orders) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponses(orders))
	}
}

// GetOrderHandler returns one of the caller's orders. Other customers'
// orders are reported as not found.
func GetOrderHandler(orderSvc UserOrders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := mw.UserID(r.Context())

		o, err := orderSvc.Get(r.Context(), chi.URLParam(r, "id"))
		if err == nil && o.UserID != userID {
			err = model.ErrNotFound
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, orderResponse{Order: o, DisplayNumber: o.DisplayNumber()})
	}
}

func ListCouponsHandler(coupons UsableCoupons, clock func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := mw.UserID(r.Context())

		list, err := coupons.ListUsable(r.Context(), userID, clock())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
	}
}
