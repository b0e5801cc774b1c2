package payment

// Persisted flag keys. Boolean flags are stored as "true"; a missing key
// reads as false.
const (
	KeyPaymentMethod            = "paymentMethod"
	KeyCardRedirectAcknowledged = "cardRedirectAcknowledged"
	KeyCardReturnFlowActive     = "cardReturnFlowActive"
	KeyPixInstructionsSeen      = "pixInstructionsSeen"
	KeyPixPaymentInitiated      = "pixPaymentInitiated"
	KeyPixReturnAcknowledged    = "pixReturnAcknowledged"
)

var (
	pixKeys  = []string{KeyPixInstructionsSeen, KeyPixPaymentInitiated, KeyPixReturnAcknowledged}
	cardKeys = []string{KeyCardRedirectAcknowledged, KeyCardReturnFlowActive}

	// AllKeys is every key owned by the payment machine.
	AllKeys = []string{
		KeyPaymentMethod,
		KeyCardRedirectAcknowledged,
		KeyCardReturnFlowActive,
		KeyPixInstructionsSeen,
		KeyPixPaymentInitiated,
		KeyPixReturnAcknowledged,
	}
)

// Flags are the external-payment markers that survive reloads.
type Flags struct {
	CardRedirectAcknowledged bool `json:"card_redirect_acknowledged"`
	CardReturnFlowActive     bool `json:"card_return_flow_active"`
	PixInstructionsSeen      bool `json:"pix_instructions_seen"`
	PixPaymentInitiated      bool `json:"pix_payment_initiated"`
	PixReturnAcknowledged    bool `json:"pix_return_acknowledged"`
}

// Effect is a single storage write: Value is stored under Key, or the key
// is deleted when Remove is set.
type Effect struct {
	Key    string
	Value  string
	Remove bool
}

func set(key string) Effect {
	return Effect{Key: key, Value: "true"}
}

func remove(key string) Effect {
	return Effect{Key: key, Remove: true}
}

func removeAll(keys []string) []Effect {
	out := make([]Effect, 0, len(keys))
	for _, k := range keys {
		out = append(out, remove(k))
	}
	return out
}

// ParseFlags decodes values read from storage, keyed by the constants
// above. Unknown method strings read as unset.
func ParseFlags(values map[string]string) (Method, Flags) {
	on := func(k string) bool { return values[k] == "true" }
	method, err := ParseMethod(values[KeyPaymentMethod])
	if err != nil {
		method = MethodUnset
	}
	return method, Flags{
		CardRedirectAcknowledged: on(KeyCardRedirectAcknowledged),
		CardReturnFlowActive:     on(KeyCardReturnFlowActive),
		PixInstructionsSeen:      on(KeyPixInstructionsSeen),
		PixPaymentInitiated:      on(KeyPixPaymentInitiated),
		PixReturnAcknowledged:    on(KeyPixReturnAcknowledged),
	}
}
