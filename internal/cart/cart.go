// Package cart aggregates line items and computes order totals.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("product not in cart")
	ErrProductMissing  = errors.New("product is required")
)

type DeliveryType string

const (
	Delivery DeliveryType = "delivery"
	Pickup   DeliveryType = "pickup"
)

func ParseDeliveryType(s string) (DeliveryType, error) {
	switch t := DeliveryType(s); t {
	case Delivery, Pickup:
		return t, nil
	default:
		return "", fmt.Errorf("unknown delivery type %q", s)
	}
}

// Product is the subset of a menu item a cart line needs.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Line struct {
	Product     Product `json:"product"`
	Quantity    int     `json:"quantity"`
	Observation string  `json:"observations,omitempty"`
}

func (l Line) Amount() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AppliedCoupon is a validated coupon attached to the cart.
type AppliedCoupon struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount"`
}

// Cart is the active shopping state of one session. It is not safe for
// concurrent use; the owning session serializes access.
type Cart struct {
	Lines        []Line         `json:"lines"`
	DeliveryType DeliveryType   `json:"delivery_type"`
	Address      string         `json:"address,omitempty"`
	Coupon       *AppliedCoupon `json:"coupon,omitempty"`
}

func New() *Cart {
	return &Cart{DeliveryType: Delivery}
}

// Add puts qty of p into the cart, merging with an existing line for the
// same product. A non-empty observation replaces the previous one.
func (c *Cart) Add(p Product, qty int, observation string) error {
	if p.ID == "" {
		return ErrProductMissing
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].Product.ID == p.ID {
			c.Lines[i].Quantity += qty
			if observation != "" {
				c.Lines[i].Observation = observation
			}
			return nil
		}
	}
	c.Lines = append(c.Lines, Line{Product: p, Quantity: qty, Observation: observation})
	return nil
}

// SetQuantity updates a line; qty <= 0 removes it.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty <= 0 {
		return c.Remove(productID)
	}
	for i := range c.Lines {
		if c.Lines[i].Product.ID == productID {
			c.Lines[i].Quantity = qty
			return nil
		}
	}
	return ErrLineNotFound
}

func (c *Cart) Remove(productID string) error {
	for i := range c.Lines {
		if c.Lines[i].Product.ID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.Coupon = nil
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Clone returns an independent copy of c.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Lines = c.Snapshot()
	if c.Coupon != nil {
		cp := *c.Coupon
		out.Coupon = &cp
	}
	return &out
}

// Snapshot returns a deep copy of the lines.
func (c *Cart) Snapshot() []Line {
	out := make([]Line, len(c.Lines))
	copy(out, c.Lines)
	return out
}
