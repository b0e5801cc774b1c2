package checkout

import (
	"github.com/shopspring/decimal"

	"deliverycart/internal/cart"
	"deliverycart/internal/payment"
	"deliverycart/internal/storehours"
)

// View is the client-facing state of a session.
type View struct {
	SessionID    string                 `json:"session_id"`
	CityID       string                 `json:"city_id,omitempty"`
	Lines        []cart.Line            `json:"lines"`
	DeliveryType cart.DeliveryType      `json:"delivery_type"`
	Address      string                 `json:"address,omitempty"`
	Coupon       *cart.AppliedCoupon    `json:"coupon,omitempty"`
	Totals       cart.Totals            `json:"totals"`
	NeedsChange  bool                   `json:"needs_change"`
	ChangeFor    *decimal.Decimal       `json:"change_for,omitempty"`
	ChangeDue    *decimal.Decimal       `json:"change_due,omitempty"`
	Payment      PaymentView            `json:"payment"`
	Store        storehours.Eligibility `json:"store"`
	// Prompt is a dialog raised by the request that produced this view.
	Prompt      payment.Prompt `json:"prompt,omitempty"`
	RedirectURL string         `json:"redirect_url,omitempty"`
}

type PaymentView struct {
	Method               payment.Method `json:"method"`
	PixState             string         `json:"pix_state"`
	CardState            string         `json:"card_state"`
	Locked               bool           `json:"locked"`
	PixReturnPending     bool           `json:"pix_return_pending"`
	CardReturnFlowActive bool           `json:"card_return_flow_active"`
	// OpenDialog is the dialog the customer still has to dismiss.
	OpenDialog payment.Prompt `json:"open_dialog,omitempty"`
	PixKey     string         `json:"pix_key,omitempty"`
}

func (s *Session) viewLocked(prompt payment.Prompt) View {
	m := s.machine
	totals := s.cart.Totals(s.config.Settings.DeliveryFee())

	v := View{
		SessionID:    s.id,
		CityID:       s.cityID,
		Lines:        s.cart.Snapshot(),
		DeliveryType: s.cart.DeliveryType,
		Address:      s.cart.Address,
		Coupon:       s.cart.Coupon,
		Totals:       totals,
		NeedsChange:  s.needsChange,
		Store:        s.eligibility,
		Prompt:       prompt,
		Payment: PaymentView{
			Method:               m.Method,
			PixState:             m.Pix().String(),
			CardState:            m.Card().String(),
			Locked:               m.Locked(),
			PixReturnPending:     m.PixReturnPending(),
			CardReturnFlowActive: m.Flags.CardReturnFlowActive,
			OpenDialog:           openDialog(m),
		},
	}
	if s.needsChange {
		cf := s.changeFor
		v.ChangeFor = &cf
		if due, err := cart.ChangeDue(cf, totals.Total); err == nil {
			v.ChangeDue = &due
		}
	}
	if m.Method == payment.MethodPix {
		v.Payment.PixKey = s.config.Settings.PixKey()
	}
	if v.Coupon != nil {
		c := *v.Coupon
		v.Coupon = &c
	}
	return v
}

func openDialog(m payment.Machine) payment.Prompt {
	switch {
	case m.CardWarningOpen:
		return payment.PromptCardWarning
	case m.PixInstructionsOpen:
		return payment.PromptPixInstructions
	case m.PixReturnPromptOpen:
		return payment.PromptPixReturnConfirmation
	default:
		return payment.PromptNone
	}
}
