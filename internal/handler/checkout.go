package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"deliverycart/internal/checkout"
	"deliverycart/internal/model"
	"deliverycart/internal/mw"
)

type createSessionRequest struct {
	CityID string `json:"city_id"`
}

type addItemRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1,max=99"`
	Observation string `json:"observation" validate:"max=500"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

type deliveryRequest struct {
	DeliveryType string `json:"delivery_type" validate:"required"`
	Address      string `json:"address" validate:"max=300"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type paymentRequest struct {
	Method      string          `json:"method" validate:"required"`
	NeedsChange bool            `json:"needs_change"`
	ChangeFor   decimal.Decimal `json:"change_for"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

type cityRequest struct {
	CityID string `json:"city_id" validate:"required"`
}

// CreateCheckoutHandler starts a session. The body is optional.
func CreateCheckoutHandler(mgr *checkout.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeError(w, r, err)
			return
		}

		s, view, err := mgr.Create(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if req.CityID != "" {
			if view, err = s.SelectCity(r.Context(), req.CityID); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

type sessionAction func(r *http.Request, s *checkout.Session) (checkout.View, error)

// withSession resolves {id} and renders the resulting view.
func withSession(mgr *checkout.Manager, action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := mgr.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		view, err := action(r, s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// withBody decodes a T before running fn.
func withBody[T any](fn func(r *http.Request, s *checkout.Session, req T) (checkout.View, error)) sessionAction {
	return func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		var req T
		if err := decodeJSON(r, &req); err != nil {
			return checkout.View{}, err
		}
		return fn(r, s, req)
	}
}

func GetCheckoutHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(_ *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.View(), nil
	})
}

func AddItemHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req addItemRequest) (checkout.View, error) {
		return s.AddItem(r.Context(), req.ProductID, req.Quantity, req.Observation)
	}))
}

func SetQuantityHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req quantityRequest) (checkout.View, error) {
		return s.SetQuantity(r.Context(), chi.URLParam(r, "productID"), req.Quantity)
	}))
}

func RemoveItemHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.RemoveItem(r.Context(), chi.URLParam(r, "productID"))
	})
}

func SetDeliveryHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req deliveryRequest) (checkout.View, error) {
		return s.SetDelivery(r.Context(), req.DeliveryType, req.Address)
	}))
}

func ApplyCouponHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req couponRequest) (checkout.View, error) {
		userID, _ := mw.UserID(r.Context())
		return s.ApplyCoupon(r.Context(), req.Code, userID)
	}))
}

func RemoveCouponHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.RemoveCoupon(r.Context())
	})
}

func SelectPaymentHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req paymentRequest) (checkout.View, error) {
		return s.SelectPayment(r.Context(), req.Method, req.NeedsChange, req.ChangeFor)
	}))
}

func DismissPixInstructionsHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.DismissPixInstructions(r.Context())
	})
}

func DismissPixReturnHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.DismissPixReturn(r.Context())
	})
}

func AcknowledgeCardHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.AcknowledgeCardWarning(r.Context())
	})
}

func VisibilityHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req visibilityRequest) (checkout.View, error) {
		return s.SetVisibility(r.Context(), *req.Visible)
	}))
}

func SelectCityHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, withBody(func(r *http.Request, s *checkout.Session, req cityRequest) (checkout.View, error) {
		return s.SelectCity(r.Context(), req.CityID)
	}))
}

// ResetPaymentHandler clears the external-payment flags, as on logout or
// when the customer opens one of their orders.
func ResetPaymentHandler(mgr *checkout.Manager) http.HandlerFunc {
	return withSession(mgr, func(r *http.Request, s *checkout.Session) (checkout.View, error) {
		return s.ResetPayment(r.Context())
	})
}

// SubmitHandler places the order. A refused submission still returns the
// session view, which may carry the dialog the customer must go through.
func SubmitHandler(mgr *checkout.Manager, users UserSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := mgr.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var cust checkout.Customer
		if userID, ok := mw.UserID(r.Context()); ok {
			user, err := users.Get(r.Context(), userID)
			switch {
			case errors.Is(err, model.ErrNotFound):
				// Token of a deleted account: treated as logged out.
			case err != nil:
				writeError(w, r, err)
				return
			default:
				cust = checkout.Customer{UserID: user.ID, Name: user.Name, Phone: user.Phone}
			}
		}

		receipt, err := s.Submit(r.Context(), cust)
		if verr, ok := checkout.AsValidation(err); ok {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Code: verr.Code, Message: verr.Message, Checkout: &receipt.View,
			})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}
