package handler

import (
	"context"
	"net/http"
	"time"

	"deliverycart/internal/checkout"
	"deliverycart/internal/model"
	"deliverycart/internal/storehours"
)

type CityLister interface {
	Cities(ctx context.Context, activeOnly bool) ([]model.City, error)
}

type HighlightLister interface {
	Highlights(ctx context.Context) ([]model.Highlight, error)
}

type MenuSource interface {
	Menu(ctx context.Context, includeUnavailable bool) ([]model.Product, error)
}

func CitiesHandler(src CityLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cities, err := src.Cities(r.Context(), true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cities))
	}
}

func MenuHandler(src MenuSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := src.Menu(r.Context(), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(products))
	}
}

func HighlightsHandler(src HighlightLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		highlights, err := src.Highlights(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(highlights))
	}
}

type storeStatus struct {
	IsOpenNow     bool                       `json:"is_open_now"`
	CanPreOrder   bool                       `json:"can_pre_order"`
	CanPlaceOrder bool                       `json:"can_place_order"`
	Now           string                     `json:"now"`
	Hours         []storehours.OperatingHour `json:"hours"`
}

// StoreStatusHandler reports whether orders are taken right now. Pre-order
// notices are per session and live in the checkout view.
func StoreStatusHandler(src checkout.ConfigSource, loc *time.Location, clock func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := src.StoreConfig(r.Context(), r.URL.Query().Get("city_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		now := clock().In(loc)
		e := storehours.Evaluate(now, cfg.Hours, "")
		writeJSON(w, http.StatusOK, storeStatus{
			IsOpenNow:     e.IsOpenNow,
			CanPreOrder:   e.CanPreOrder,
			CanPlaceOrder: e.CanPlaceOrder,
			Now:           now.Format("2006-01-02T15:04"),
			Hours:         nonNil(cfg.Hours),
		})
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
