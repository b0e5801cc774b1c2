package checkout

import (
	"errors"
	"fmt"
)

var ErrSessionNotFound = errors.New("checkout session not found")

// Codes returned to the client with a ValidationError.
const (
	CodeStoreClosed          = "store_closed"
	CodeNotAuthenticated     = "not_authenticated"
	CodeCartEmpty            = "cart_empty"
	CodeAddressRequired      = "address_required"
	CodeMethodRequired       = "payment_method_required"
	CodeInvalidChange        = "invalid_change"
	CodePixUnavailable       = "pix_unavailable"
	CodePixInstructions      = "pix_instructions_required"
	CodePixReturnPending     = "pix_return_pending"
	CodeCardWarningRequired  = "card_warning_required"
	CodeCartLocked           = "cart_locked"
	CodeCouponInvalid        = "coupon_invalid"
	CodeProductUnavailable   = "product_unavailable"
	CodeCityUnavailable      = "city_unavailable"
	CodeInvalidQuantity      = "invalid_quantity"
	CodeInvalidDeliveryType  = "invalid_delivery_type"
	CodeInvalidPaymentMethod = "invalid_payment_method"
	CodeInvalidTransition    = "invalid_transition"
)

// ValidationError blocks an action without changing any state. Message is
// meant for the customer.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(code, msg string) *ValidationError {
	return &ValidationError{Code: code, Message: msg}
}

func wrapInvalid(code, msg string, err error) *ValidationError {
	return &ValidationError{Code: code, Message: msg, Err: err}
}

// AsValidation reports whether err carries a ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}
