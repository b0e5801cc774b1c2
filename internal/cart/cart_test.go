package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id, price string) Product {
	return Product{ID: id, Name: "item " + id, Price: dec(price)}
}

func TestTotals_SpecExample(t *testing.T) {
	c := New()
	if err := c.Add(product("a", "25.00"), 4, ""); err != nil {
		t.Fatal(err)
	}
	c.Coupon = &AppliedCoupon{Code: "TEN", DiscountPercent: dec("10")}

	got := c.Totals(dec("5"))
	if !got.Subtotal.Equal(dec("100")) {
		t.Errorf("Subtotal = %s", got.Subtotal)
	}
	if !got.Discount.Equal(dec("10")) {
		t.Errorf("Discount = %s", got.Discount)
	}
	if !got.Total.Equal(dec("95")) {
		t.Errorf("Total = %s, want 95", got.Total)
	}
}

func TestTotals(t *testing.T) {
	tests := []struct {
		name     string
		delivery DeliveryType
		coupon   string
		lines    []Line
		want     string
	}{
		{"pickup has no fee", Pickup, "", []Line{{Product: product("a", "12.50"), Quantity: 2}}, "25"},
		{"delivery adds fee", Delivery, "", []Line{{Product: product("a", "12.50"), Quantity: 2}}, "28"},
		{"empty delivery cart is just the fee", Delivery, "", nil, "3"},
		{"discount applies to subtotal only", Delivery, "50", []Line{{Product: product("a", "10"), Quantity: 1}}, "8"},
		{"over 100 percent is not clamped", Pickup, "150", []Line{{Product: product("a", "10"), Quantity: 1}}, "-5"},
		{"cents stay exact", Pickup, "", []Line{{Product: product("a", "0.10"), Quantity: 3}}, "0.3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &Cart{Lines: tc.lines, DeliveryType: tc.delivery}
			if tc.coupon != "" {
				c.Coupon = &AppliedCoupon{DiscountPercent: dec(tc.coupon)}
			}
			got := c.Totals(dec("3"))
			if !got.Total.Equal(dec(tc.want)) {
				t.Errorf("Total = %s, want %s", got.Total, tc.want)
			}
		})
	}
}

func TestAdd_MergesLines(t *testing.T) {
	c := New()
	_ = c.Add(product("a", "1"), 1, "sem cebola")
	_ = c.Add(product("b", "1"), 1, "")
	_ = c.Add(product("a", "1"), 2, "")

	if len(c.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(c.Lines))
	}
	if c.Lines[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", c.Lines[0].Quantity)
	}
	if c.Lines[0].Observation != "sem cebola" {
		t.Errorf("empty observation overwrote existing one: %q", c.Lines[0].Observation)
	}

	_ = c.Add(product("a", "1"), 1, "extra shoyu")
	if c.Lines[0].Observation != "extra shoyu" {
		t.Errorf("observation = %q", c.Lines[0].Observation)
	}
}

func TestAdd_Rejects(t *testing.T) {
	c := New()
	if err := c.Add(product("a", "1"), 0, ""); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("qty 0: %v", err)
	}
	if err := c.Add(Product{}, 1, ""); !errors.Is(err, ErrProductMissing) {
		t.Errorf("no product: %v", err)
	}
}

func TestSetQuantity(t *testing.T) {
	c := New()
	_ = c.Add(product("a", "1"), 1, "")

	if err := c.SetQuantity("a", 5); err != nil || c.Lines[0].Quantity != 5 {
		t.Fatalf("SetQuantity = %v, qty %d", err, c.Lines[0].Quantity)
	}
	if err := c.SetQuantity("a", 0); err != nil || !c.Empty() {
		t.Fatalf("qty 0 should remove: %v, %d lines", err, len(c.Lines))
	}
	if err := c.SetQuantity("zzz", 2); !errors.Is(err, ErrLineNotFound) {
		t.Errorf("unknown product: %v", err)
	}
}

func TestClearDropsCoupon(t *testing.T) {
	c := New()
	_ = c.Add(product("a", "1"), 1, "")
	c.Coupon = &AppliedCoupon{Code: "X"}
	c.Clear()
	if !c.Empty() || c.Coupon != nil {
		t.Errorf("Clear left %+v", c)
	}
}

func TestChangeDue(t *testing.T) {
	tests := []struct {
		changeFor, total string
		want             string
		wantErr          bool
	}{
		{"100", "95", "5", false},
		{"95", "95", "", true},
		{"50", "95", "", true},
		{"95.01", "95", "0.01", false},
	}
	for _, tc := range tests {
		got, err := ChangeDue(dec(tc.changeFor), dec(tc.total))
		if tc.wantErr {
			if !errors.Is(err, ErrChangeTooSmall) {
				t.Errorf("ChangeDue(%s, %s) err = %v", tc.changeFor, tc.total, err)
			}
			continue
		}
		if err != nil || !got.Equal(dec(tc.want)) {
			t.Errorf("ChangeDue(%s, %s) = %s, %v", tc.changeFor, tc.total, got, err)
		}
	}
}

func TestParseDeliveryType(t *testing.T) {
	if _, err := ParseDeliveryType("drone"); err == nil {
		t.Error("expected error")
	}
	if d, err := ParseDeliveryType("pickup"); err != nil || d != Pickup {
		t.Errorf("got %q %v", d, err)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	c := New()
	_ = c.Add(product("a", "1"), 1, "")
	c.Coupon = &AppliedCoupon{Code: "X"}

	cp := c.Clone()
	_ = cp.SetQuantity("a", 9)
	cp.Coupon.Code = "Y"
	cp.Address = "elsewhere"

	if c.Lines[0].Quantity != 1 || c.Coupon.Code != "X" || c.Address != "" {
		t.Errorf("original mutated: %+v", c)
	}
}
