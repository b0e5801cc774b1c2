// Package payment holds the per-checkout payment-method state machine.
//
// Machine is a value type and never performs I/O. Apply returns the next
// machine together with the storage effects the caller must persist and,
// when a dialog has to be shown to the customer, a Prompt.
package payment

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMethod     = errors.New("unknown payment method")
	ErrInvalidTransition = errors.New("invalid payment transition")
)

type Method string

const (
	MethodUnset Method = ""
	MethodPix   Method = "pix"
	MethodCard  Method = "card"
	MethodCash  Method = "cash"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodUnset, MethodPix, MethodCard, MethodCash:
		return m, nil
	default:
		return MethodUnset, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

type PixState int

const (
	PixUnselected PixState = iota
	PixInstructionsShown
	PixPaymentInitiated
	PixReturnAcknowledged
)

func (s PixState) String() string {
	switch s {
	case PixInstructionsShown:
		return "instructions_shown"
	case PixPaymentInitiated:
		return "payment_initiated"
	case PixReturnAcknowledged:
		return "return_acknowledged"
	default:
		return "unselected"
	}
}

type CardState int

const (
	CardUnselected CardState = iota
	CardWarningAcknowledged
	CardRedirectedExternally
)

func (s CardState) String() string {
	switch s {
	case CardWarningAcknowledged:
		return "warning_acknowledged"
	case CardRedirectedExternally:
		return "redirected_externally"
	default:
		return "unselected"
	}
}

// Prompt is a dialog the customer has to see and dismiss.
type Prompt string

const (
	PromptNone                  Prompt = ""
	PromptPixInstructions       Prompt = "pix_instructions"
	PromptPixReturnConfirmation Prompt = "pix_return_confirmation"
	PromptCardWarning           Prompt = "card_warning"
)

// Machine is the in-memory payment state of one checkout session.
// Flags mirror the persisted store; the remaining fields are ephemeral.
type Machine struct {
	Method Method
	Flags  Flags

	PixInstructionsOpen bool
	PixReturnPromptOpen bool
	CardWarningOpen     bool

	// Visible tracks the customer's tab so that a return prompt is raised
	// only on a hidden->visible edge.
	Visible bool
}

// New returns an empty machine whose tab has not been seen yet.
func New() Machine {
	return Machine{}
}

func (m Machine) Pix() PixState {
	if m.Method != MethodPix {
		return PixUnselected
	}
	switch {
	case m.Flags.PixReturnAcknowledged:
		return PixReturnAcknowledged
	case m.Flags.PixPaymentInitiated:
		return PixPaymentInitiated
	default:
		return PixInstructionsShown
	}
}

func (m Machine) Card() CardState {
	if m.Method != MethodCard {
		return CardUnselected
	}
	switch {
	case m.Flags.CardReturnFlowActive:
		return CardRedirectedExternally
	case m.Flags.CardRedirectAcknowledged:
		return CardWarningAcknowledged
	default:
		return CardUnselected
	}
}

// PixReturnPending reports an unacknowledged PIX payment.
func (m Machine) PixReturnPending() bool {
	return m.Pix() == PixPaymentInitiated
}

// Locked reports whether cart lines, coupon and delivery type are frozen.
func (m Machine) Locked() bool {
	return m.PixReturnPending() || m.PixInstructionsOpen || m.Flags.CardReturnFlowActive
}

// Transition is the result of applying an event.
type Transition struct {
	Next    Machine
	Effects []Effect
	Prompt  Prompt
	// Redirect asks the caller to send the customer to the external card
	// payment page.
	Redirect bool
}

type Event interface {
	event()
}

type (
	SelectMethod           struct{ Method Method }
	DismissPixInstructions struct{}
	DismissPixReturn       struct{}
	AcknowledgeCardWarning struct{}
	// RequestCardWarning re-opens the card warning, used when a submit is
	// attempted before acknowledgement.
	RequestCardWarning struct{}
	VisibilityChanged  struct{ Visible bool }
	OrderSubmitted     struct{}
	// Reset covers logout, explicit cancel and leaving to order tracking.
	Reset struct{}
)

func (SelectMethod) event()           {}
func (DismissPixInstructions) event() {}
func (DismissPixReturn) event()       {}
func (AcknowledgeCardWarning) event() {}
func (RequestCardWarning) event()     {}
func (VisibilityChanged) event()      {}
func (OrderSubmitted) event()         {}
func (Reset) event()                  {}

// Apply computes the transition for ev. The receiver is not modified.
func (m Machine) Apply(ev Event) (Transition, error) {
	switch e := ev.(type) {
	case SelectMethod:
		return m.selectMethod(e.Method)
	case DismissPixInstructions:
		return m.dismissPixInstructions()
	case DismissPixReturn:
		return m.dismissPixReturn()
	case AcknowledgeCardWarning:
		return m.acknowledgeCard()
	case RequestCardWarning:
		if m.Method != MethodCard {
			return Transition{Next: m}, fmt.Errorf("%w: card warning without card selected", ErrInvalidTransition)
		}
		if m.Flags.CardRedirectAcknowledged {
			return Transition{Next: m}, nil
		}
		m.CardWarningOpen = true
		return Transition{Next: m, Prompt: PromptCardWarning}, nil
	case VisibilityChanged:
		return m.visibility(e.Visible), nil
	case OrderSubmitted, Reset:
		return m.clearAll(), nil
	default:
		return Transition{Next: m}, fmt.Errorf("%w: unsupported event %T", ErrInvalidTransition, ev)
	}
}

func (m Machine) selectMethod(method Method) (Transition, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return Transition{Next: m}, err
	}

	var effects []Effect
	if method != MethodPix {
		m.Flags.PixInstructionsSeen = false
		m.Flags.PixPaymentInitiated = false
		m.Flags.PixReturnAcknowledged = false
		m.PixInstructionsOpen = false
		m.PixReturnPromptOpen = false
		effects = append(effects, removeAll(pixKeys)...)
	}
	if method != MethodCard {
		m.Flags.CardRedirectAcknowledged = false
		m.Flags.CardReturnFlowActive = false
		m.CardWarningOpen = false
		effects = append(effects, removeAll(cardKeys)...)
	}

	m.Method = method
	if method == MethodUnset {
		effects = append(effects, remove(KeyPaymentMethod))
	} else {
		effects = append(effects, Effect{Key: KeyPaymentMethod, Value: string(method)})
	}

	t := Transition{Next: m, Effects: effects}
	switch method {
	case MethodPix:
		if !m.Flags.PixInstructionsSeen && !m.PixInstructionsOpen {
			t.Next.PixInstructionsOpen = true
			t.Prompt = PromptPixInstructions
		}
	case MethodCard:
		if !m.Flags.CardRedirectAcknowledged && !m.CardWarningOpen {
			t.Next.CardWarningOpen = true
			t.Prompt = PromptCardWarning
		}
	}
	return t, nil
}

// dismissPixInstructions confirms the customer read the instructions. It
// cannot verify that a transfer happened.
func (m Machine) dismissPixInstructions() (Transition, error) {
	if m.Pix() != PixInstructionsShown {
		return Transition{Next: m}, fmt.Errorf("%w: pix instructions dismissed in state %s", ErrInvalidTransition, m.Pix())
	}
	m.PixInstructionsOpen = false
	m.Flags.PixInstructionsSeen = true
	m.Flags.PixPaymentInitiated = true
	m.Flags.PixReturnAcknowledged = false
	return Transition{
		Next: m,
		Effects: []Effect{
			set(KeyPixInstructionsSeen),
			set(KeyPixPaymentInitiated),
			remove(KeyPixReturnAcknowledged),
		},
	}, nil
}

func (m Machine) dismissPixReturn() (Transition, error) {
	if m.Pix() != PixPaymentInitiated || !m.PixReturnPromptOpen {
		return Transition{Next: m}, fmt.Errorf("%w: no pix return confirmation is open", ErrInvalidTransition)
	}
	m.PixReturnPromptOpen = false
	m.Flags.PixReturnAcknowledged = true
	return Transition{Next: m, Effects: []Effect{set(KeyPixReturnAcknowledged)}}, nil
}

func (m Machine) acknowledgeCard() (Transition, error) {
	if m.Method != MethodCard {
		return Transition{Next: m}, fmt.Errorf("%w: card warning acknowledged without card selected", ErrInvalidTransition)
	}
	m.CardWarningOpen = false
	m.Flags.CardRedirectAcknowledged = true
	m.Flags.CardReturnFlowActive = true
	return Transition{
		Next:     m,
		Effects:  []Effect{set(KeyCardRedirectAcknowledged), set(KeyCardReturnFlowActive)},
		Redirect: true,
	}, nil
}

func (m Machine) visibility(visible bool) Transition {
	regained := visible && !m.Visible
	m.Visible = visible
	t := Transition{Next: m}
	if regained && m.PixReturnPending() && !m.PixReturnPromptOpen {
		t.Next.PixReturnPromptOpen = true
		t.Prompt = PromptPixReturnConfirmation
	}
	return t
}

func (m Machine) clearAll() Transition {
	next := Machine{Visible: m.Visible}
	return Transition{Next: next, Effects: removeAll(AllKeys)}
}

// Reconcile replaces the persisted part of m with values read back from
// storage, closing dialogs that no longer apply.
func (m Machine) Reconcile(method Method, flags Flags) Machine {
	m.Method = method
	m.Flags = flags
	if m.Pix() != PixInstructionsShown || flags.PixInstructionsSeen {
		m.PixInstructionsOpen = false
	}
	if !m.PixReturnPending() {
		m.PixReturnPromptOpen = false
	}
	if method != MethodCard || flags.CardRedirectAcknowledged {
		m.CardWarningOpen = false
	}
	return m
}
