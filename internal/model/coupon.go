package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CouponBirthday  = "birthday"
	CouponLoyalty   = "loyalty"
	CouponPromotion = "promotion"
)

type Coupon struct {
	ID              string          `json:"id"`
	Name            string          `json:"name" validate:"required"`
	Code            string          `json:"code" validate:"required,max=32"`
	Discount        decimal.Decimal `json:"discount" validate:"gt=0"`
	Type            string          `json:"type" validate:"oneof=birthday loyalty promotion"`
	ValidFrom       time.Time       `json:"valid_from"`
	ValidTo         time.Time       `json:"valid_to"`
	Active          bool            `json:"active"`
	UsageLimit      *int            `json:"usage_limit,omitempty" validate:"omitempty,min=1"`
	UsageCount      int             `json:"usage_count"`
	UserID          *string         `json:"user_id,omitempty"`
	PendingApproval bool            `json:"pending_approval"`
	CreatedAt       time.Time       `json:"created_at"`
}
