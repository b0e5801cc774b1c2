package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
)

// Order statuses, in the order an admin advances them.
const (
	StatusReceived        = "Pedido recebido"
	StatusPreparing       = "Em preparação"
	StatusReadyForCourier = "Pronto para entrega"
	StatusOutForDelivery  = "Saiu para entrega"
	StatusDelivered       = "Entregue"
	StatusAwaitingPickup  = "Aguardando cliente retirar o pedido"
	StatusPickedUp        = "Cliente já fez a retirada"
)

var (
	deliveryFlow = []string{StatusReceived, StatusPreparing, StatusReadyForCourier, StatusOutForDelivery, StatusDelivered}
	pickupFlow   = []string{StatusReceived, StatusPreparing, StatusAwaitingPickup, StatusPickedUp}
)

// StatusFlow returns the status sequence for a delivery type.
func StatusFlow(deliveryType string) []string {
	if deliveryType == DeliveryTypePickup {
		return pickupFlow
	}
	return deliveryFlow
}

// NextStatus returns the status after current, or false when current is
// final or unknown.
func NextStatus(deliveryType, current string) (string, bool) {
	flow := StatusFlow(deliveryType)
	for i, s := range flow {
		if s == current && i+1 < len(flow) {
			return flow[i+1], true
		}
	}
	return "", false
}

func IsFinalStatus(deliveryType, status string) bool {
	flow := StatusFlow(deliveryType)
	return flow[len(flow)-1] == status
}

type OrderItem struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Observations string          `json:"observations,omitempty"`
}

type Order struct {
	ID             string           `json:"id"`
	OrderNumber    int64            `json:"order_number"`
	UserID         string           `json:"user_id"`
	CustomerName   string           `json:"customer_name"`
	CustomerPhone  string           `json:"customer_phone"`
	Items          []OrderItem      `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DeliveryFee    decimal.Decimal  `json:"delivery_fee"`
	Discount       decimal.Decimal  `json:"discount"`
	Total          decimal.Decimal  `json:"total"`
	DeliveryType   string           `json:"delivery_type"`
	Address        string           `json:"address,omitempty"`
	PaymentMethod  string           `json:"payment_method"`
	ChangeFor      *decimal.Decimal `json:"change_for,omitempty"`
	CouponUsed     string           `json:"coupon_used,omitempty"`
	Status         string           `json:"status"`
	NotifiedStatus string           `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
}

// DisplayNumber is the customer-facing order code, e.g. "C&R07".
func (o Order) DisplayNumber() string {
	return fmt.Sprintf("C&R%02d", o.OrderNumber)
}

// StatusChange is one admin status change waiting to be forwarded to the
// customer. Order holds the order as it is now, which may be further along.
type StatusChange struct {
	ID     int64
	Status string
	Order  Order
}

// Notice returns the order as it was right after this change.
func (c StatusChange) Notice() Order {
	o := c.Order
	o.Status = c.Status
	return o
}

// NewOrder is what the checkout hands to the order store. The store
// assigns ID, OrderNumber, Status and CreatedAt.
type NewOrder struct {
	UserID        string
	CustomerName  string
	CustomerPhone string
	Items         []OrderItem
	Subtotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	DeliveryType  string
	Address       string
	PaymentMethod string
	ChangeFor     *decimal.Decimal
	CouponID      string
	CouponCode    string
}
