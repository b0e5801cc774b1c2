package model

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrCouponNotFound   = errors.New("coupon not found")
	ErrCouponInactive   = errors.New("coupon is not active")
	ErrCouponExpired    = errors.New("coupon is outside its validity period")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
	ErrCouponNotAllowed = errors.New("coupon belongs to another customer")
)
