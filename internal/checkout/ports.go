package checkout

import (
	"context"
	"time"

	"deliverycart/internal/model"
	"deliverycart/internal/storehours"
)

// StoreConfig is the read-only store configuration a session works with.
type StoreConfig struct {
	Settings model.Settings
	Hours    []storehours.OperatingHour
}

// ConfigSource loads settings and the weekly hours table. cityID may be
// empty before a city is chosen; an inactive or unknown city returns
// model.ErrNotFound.
type ConfigSource interface {
	StoreConfig(ctx context.Context, cityID string) (StoreConfig, error)
}

type ProductSource interface {
	// Product returns an available product or model.ErrNotFound.
	Product(ctx context.Context, id string) (model.Product, error)
}

type CouponSource interface {
	// Redeemable returns the coupon for code if userID may use it at now.
	// Rule violations are reported with the model.ErrCoupon* sentinels.
	Redeemable(ctx context.Context, code, userID string, now time.Time) (model.Coupon, error)
	IncrementUsage(ctx context.Context, couponID string) error
}

// OrderSubmitter persists an order and assigns its sequential number.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, o model.NewOrder) (model.Order, error)
}

// Publisher receives orders after a successful checkout.
type Publisher interface {
	PublishOrder(kind string, o model.Order) error
}
