package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"deliverycart/internal/cart"
	"deliverycart/internal/events"
	"deliverycart/internal/logging"
	"deliverycart/internal/metrics"
	"deliverycart/internal/model"
	"deliverycart/internal/notify"
	"deliverycart/internal/payment"
	"deliverycart/internal/retry"
	"deliverycart/internal/storehours"
)

// Customer identifies who is placing the order. An empty UserID means the
// customer is not logged in.
type Customer struct {
	UserID string
	Name   string
	Phone  string
}

// Receipt is the outcome of a submit attempt. Order is set only on
// success; View is always set when the session is still usable.
type Receipt struct {
	Order *model.Order `json:"order,omitempty"`
	View  View         `json:"checkout"`
}

// Submit places the order. Preconditions are checked in a fixed order and
// the first failure is returned as a *ValidationError without any network
// call. A failed submission leaves the cart and payment state untouched.
func (s *Session) Submit(ctx context.Context, cust Customer) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.submitLocked(ctx, cust)
	if v, ok := AsValidation(err); ok {
		metrics.SubmitRejections.WithLabelValues(v.Code).Inc()
	}
	if err != nil {
		return Receipt{View: s.viewLocked(s.pendingPrompt)}, err
	}
	return Receipt{Order: &order, View: s.viewLocked(payment.PromptNone)}, nil
}

func (s *Session) submitLocked(ctx context.Context, cust Customer) (model.Order, error) {
	s.pendingPrompt = payment.PromptNone

	if !storehours.Evaluate(s.now(), s.config.Hours, s.modalSeen).CanPlaceOrder {
		return model.Order{}, invalid(CodeStoreClosed, "The store is closed and not taking pre-orders right now.")
	}
	if cust.UserID == "" {
		return model.Order{}, invalid(CodeNotAuthenticated, "Log in to place your order.")
	}
	if s.cart.Empty() {
		return model.Order{}, invalid(CodeCartEmpty, "Your cart is empty.")
	}
	if s.cart.DeliveryType == cart.Delivery && s.cart.Address == "" {
		return model.Order{}, invalid(CodeAddressRequired, "Enter a delivery address.")
	}

	m := s.machine
	if m.Method == payment.MethodUnset {
		return model.Order{}, invalid(CodeMethodRequired, "Choose a payment method.")
	}

	totals := s.cart.Totals(s.config.Settings.DeliveryFee())
	var changeFor *decimal.Decimal
	if m.Method == payment.MethodCash && s.needsChange {
		if _, err := cart.ChangeDue(s.changeFor, totals.Total); err != nil {
			return model.Order{}, wrapInvalid(CodeInvalidChange, "The change amount must be greater than the order total.", err)
		}
		cf := s.changeFor
		changeFor = &cf
	}

	if err := s.checkPayment(ctx); err != nil {
		return model.Order{}, err
	}

	payload := s.newOrder(cust, totals, changeFor)
	order, err := retry.Do(ctx, s.deps.Retry, "submit order", func(ctx context.Context) (model.Order, error) {
		return s.deps.Orders.CreateOrder(ctx, payload)
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("submit order: %w", err)
	}

	metrics.OrdersSubmitted.WithLabelValues(string(m.Method)).Inc()
	logging.Info().Str("session", s.id).Int64("order_number", order.OrderNumber).
		Str("payment_method", string(m.Method)).Str("total", order.Total.StringFixed(2)).Msg("order submitted")

	s.afterSubmit(ctx, order, payload.CouponID)
	return order, nil
}

// checkPayment applies the method-specific gates.
func (s *Session) checkPayment(ctx context.Context) error {
	m := s.machine
	switch m.Method {
	case payment.MethodPix:
		if s.config.Settings.PixKey() == "" {
			return invalid(CodePixUnavailable, "PIX is not available right now. Choose another payment method.")
		}
		if !m.Flags.PixInstructionsSeen {
			if !m.PixInstructionsOpen {
				t, err := s.apply(ctx, payment.SelectMethod{Method: payment.MethodPix})
				if err != nil {
					return err
				}
				s.pendingPrompt = t.Prompt
			}
			return invalid(CodePixInstructions, "Read the PIX payment instructions first.")
		}
		if m.PixReturnPending() {
			return invalid(CodePixReturnPending, "Confirm that you completed the PIX payment before finishing the order.")
		}
	case payment.MethodCard:
		if !m.Flags.CardRedirectAcknowledged {
			t, err := s.apply(ctx, payment.RequestCardWarning{})
			if err != nil {
				return err
			}
			s.pendingPrompt = t.Prompt
			return invalid(CodeCardWarningRequired, "Confirm the card payment notice to continue.")
		}
	}
	return nil
}

func (s *Session) newOrder(cust Customer, totals cart.Totals, changeFor *decimal.Decimal) model.NewOrder {
	items := make([]model.OrderItem, len(s.cart.Lines))
	for i, l := range s.cart.Lines {
		items[i] = model.OrderItem{
			ProductID:    l.Product.ID,
			Name:         l.Product.Name,
			Price:        l.Product.Price,
			Quantity:     l.Quantity,
			Observations: l.Observation,
		}
	}

	o := model.NewOrder{
		UserID:        cust.UserID,
		CustomerName:  cust.Name,
		CustomerPhone: cust.Phone,
		Items:         items,
		Subtotal:      totals.Subtotal,
		DeliveryFee:   totals.DeliveryFee,
		Discount:      totals.Discount,
		Total:         totals.Total,
		DeliveryType:  string(s.cart.DeliveryType),
		PaymentMethod: string(s.machine.Method),
		ChangeFor:     changeFor,
	}
	if s.cart.DeliveryType == cart.Delivery {
		o.Address = s.cart.Address
	}
	if c := s.cart.Coupon; c != nil {
		o.CouponID = c.ID
		o.CouponCode = c.Code
	}
	return o
}

// afterSubmit clears the session and runs the follow-ups of a placed
// order. None of them can undo the order, so failures are only logged.
func (s *Session) afterSubmit(ctx context.Context, order model.Order, couponID string) {
	log := logging.Ctx(ctx).With().Str("session", s.id).Int64("order_number", order.OrderNumber).Logger()

	if _, err := s.apply(ctx, payment.OrderSubmitted{}); err != nil {
		log.Error().Err(err).Msg("could not clear payment flags")
	}
	s.cart.Clear()
	s.needsChange, s.changeFor = false, decimal.Zero
	if err := s.persistLocked(ctx); err != nil {
		log.Error().Err(err).Msg("could not persist cleared cart")
	}

	if couponID != "" {
		if err := s.deps.Coupons.IncrementUsage(ctx, couponID); err != nil {
			log.Error().Err(err).Str("coupon", couponID).Msg("could not increment coupon usage")
		}
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishOrder(events.KindCreated, order); err != nil {
			log.Warn().Err(err).Msg("could not publish order event")
		}
	}

	err := notify.Dispatch(ctx, s.deps.Notifier, notify.NewOrderMessage(order), s.deps.NotifyWait, s.deps.NotifyTimeout)
	switch {
	case errors.Is(err, notify.ErrSlow):
		log.Info().Msg("order notification still in flight")
	case err != nil:
		log.Warn().Err(err).Msg("order notification failed")
	}
}
