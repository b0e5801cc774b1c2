package model

import "github.com/shopspring/decimal"

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name" validate:"required"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price" validate:"gt=0"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	BadgeText     string           `json:"badge_text,omitempty"`
	Image         string           `json:"image"`
	Category      string           `json:"category" validate:"required"`
	Available     bool             `json:"available"`
}

// Highlight is a featured dish shown in a ring above the menu.
type Highlight struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	ImageURL    string          `json:"image_url" validate:"required,url"`
	BorderColor string          `json:"border_color" validate:"max=32"`
	OrderIndex  int             `json:"order_index" validate:"gte=0"`
	ShadowSize  int             `json:"shadow_size" validate:"gte=0,lte=40"`
}

const (
	DefaultHighlightBorder = "#dc2626"
	DefaultHighlightShadow = 4
)

type City struct {
	ID     string `json:"id"`
	Name   string `json:"name" validate:"required"`
	Active bool   `json:"active"`
}

// Settings keys.
const (
	SettingDeliveryFee     = "delivery_fee"
	SettingPixKey          = "pix_key"
	SettingCardPaymentLink = "card_payment_link"
)

const DefaultCardPaymentLink = "https://link.mercadopago.com.br/sushicr"

var DefaultDeliveryFee = decimal.RequireFromString("3.00")

// Settings is the store-wide key/value configuration edited by admins.
type Settings map[string]string

// DeliveryFee falls back to the default when the value is missing or
// unparsable.
func (s Settings) DeliveryFee() decimal.Decimal {
	fee, err := decimal.NewFromString(s[SettingDeliveryFee])
	if err != nil || fee.IsNegative() {
		return DefaultDeliveryFee
	}
	return fee
}

func (s Settings) PixKey() string {
	return s[SettingPixKey]
}

func (s Settings) CardPaymentLink() string {
	if l := s[SettingCardPaymentLink]; l != "" {
		return l
	}
	return DefaultCardPaymentLink
}
