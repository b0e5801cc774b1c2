package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrChangeTooSmall = errors.New("change-for amount must be greater than the order total")

var hundred = decimal.NewFromInt(100)

type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// Totals computes subtotal + fee - discount. The fee applies to delivery
// orders only. The total is not clamped at zero.
func (c *Cart) Totals(flatFee decimal.Decimal) Totals {
	var t Totals
	for _, l := range c.Lines {
		t.Subtotal = t.Subtotal.Add(l.Amount())
	}
	if c.DeliveryType == Delivery {
		t.DeliveryFee = flatFee
	}
	if c.Coupon != nil {
		t.Discount = t.Subtotal.Mul(c.Coupon.DiscountPercent).Div(hundred)
	}
	t.Total = t.Subtotal.Add(t.DeliveryFee).Sub(t.Discount)
	return t
}

// ChangeDue returns changeFor - total, which must be strictly positive.
func ChangeDue(changeFor, total decimal.Decimal) (decimal.Decimal, error) {
	due := changeFor.Sub(total)
	if !due.IsPositive() {
		return decimal.Zero, ErrChangeTooSmall
	}
	return due, nil
}
