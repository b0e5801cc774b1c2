// Package checkout runs customer checkout sessions: the cart, the payment
// state machine and store eligibility, kept in step with the flag store.
//
// Persisted state is read back only by reconciliation, which runs when a
// session is mounted and whenever the customer's tab becomes visible
// again. Every other operation writes through to the store and trusts its
// in-memory copy.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"deliverycart/internal/cart"
	"deliverycart/internal/flagstore"
	"deliverycart/internal/logging"
	"deliverycart/internal/metrics"
	"deliverycart/internal/model"
	"deliverycart/internal/notify"
	"deliverycart/internal/payment"
	"deliverycart/internal/retry"
	"deliverycart/internal/storehours"
)

// Keys stored next to the payment flags.
const (
	KeyCart              = "cart"
	KeyPreOrderModalSeen = "preOrderModalLastSeenDate"
)

// sessionKeys is every key a session owns.
var sessionKeys = append([]string{KeyCart, KeyPreOrderModalSeen}, payment.AllKeys...)

type Deps struct {
	Store    flagstore.Store
	Config   ConfigSource
	Products ProductSource
	Coupons  CouponSource
	Orders   OrderSubmitter
	Notifier notify.Sender
	Events   Publisher

	Retry retry.Policy
	// NotifyWait bounds how long a checkout waits for the new-order
	// notification; NotifyTimeout bounds the notification itself.
	NotifyWait    time.Duration
	NotifyTimeout time.Duration

	Clock    func() time.Time
	Location *time.Location
}

func (d *Deps) setDefaults() {
	if d.Retry.Attempts == 0 {
		d.Retry = retry.DefaultPolicy()
	}
	if d.NotifyWait == 0 {
		d.NotifyWait = 3 * time.Second
	}
	if d.NotifyTimeout == 0 {
		d.NotifyTimeout = 15 * time.Second
	}
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
}

// snapshot is the persisted part of a session that is not a payment flag.
type snapshot struct {
	Cart        *cart.Cart      `json:"cart"`
	CityID      string          `json:"city_id,omitempty"`
	NeedsChange bool            `json:"needs_change,omitempty"`
	ChangeFor   decimal.Decimal `json:"change_for"`
}

type Session struct {
	id    string
	deps  *Deps
	store flagstore.Store

	initOnce sync.Once
	initErr  error
	lastSeen atomic.Int64

	mu           sync.Mutex
	cart         *cart.Cart
	cityID       string
	needsChange  bool
	changeFor    decimal.Decimal
	machine      payment.Machine
	config       StoreConfig
	configLoaded bool
	// gen increases on every city selection and again when one commits;
	// configuration fetched under an older generation is discarded.
	gen         uint64
	modalSeen   string
	eligibility storehours.Eligibility
	// pendingPrompt carries a dialog raised while a submit was rejected.
	pendingPrompt payment.Prompt
}

func newSession(id string, d *Deps) *Session {
	s := &Session{
		id:      id,
		deps:    d,
		store:   flagstore.NewScoped(d.Store, id),
		cart:    cart.New(),
		machine: payment.New(),
	}
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) touch() {
	s.lastSeen.Store(s.deps.Clock().UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) now() time.Time {
	return s.deps.Clock().In(s.deps.Location)
}

// View returns the current state without touching storage.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(payment.PromptNone)
}

// Reconcile re-reads persisted flags, refreshes the store configuration
// and re-evaluates eligibility.
func (s *Session) Reconcile(ctx context.Context) (View, error) {
	return s.reconcile(ctx, false)
}

// SetVisibility records the customer's tab visibility. Becoming visible
// reconciles first, so a PIX return prompt reflects what is persisted.
func (s *Session) SetVisibility(ctx context.Context, visible bool) (View, error) {
	if visible {
		return s.reconcile(ctx, true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.apply(ctx, payment.VisibilityChanged{Visible: false})
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(t.Prompt), nil
}

func (s *Session) reconcile(ctx context.Context, regained bool) (View, error) {
	s.mu.Lock()
	if err := s.readPersistedLocked(ctx); err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	gen, city := s.gen, s.cityID
	s.mu.Unlock()

	cfg, cfgErr := s.fetchConfig(ctx, city)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case cfgErr == nil && gen == s.gen && city == s.cityID:
		s.config, s.configLoaded = cfg, true
	case cfgErr == nil:
		logging.Debug().Str("session", s.id).Msg("discarding configuration fetched before city change")
	case !s.configLoaded:
		return View{}, fmt.Errorf("load store configuration: %w", cfgErr)
	default:
		logging.Warn().Err(cfgErr).Str("session", s.id).Msg("keeping cached store configuration")
	}
	s.evaluateLocked(ctx)

	prompt := payment.PromptNone
	if regained {
		t, err := s.apply(ctx, payment.VisibilityChanged{Visible: true})
		if err != nil {
			return View{}, err
		}
		prompt = t.Prompt
	}
	return s.viewLocked(prompt), nil
}

// readPersistedLocked is the only place flags are read back into memory.
func (s *Session) readPersistedLocked(ctx context.Context) error {
	values := make(map[string]string, len(payment.AllKeys))
	for _, k := range payment.AllKeys {
		v, ok, err := s.store.Get(ctx, k)
		if err != nil {
			return fmt.Errorf("read flag %s: %w", k, err)
		}
		if ok {
			values[k] = v
		}
	}
	method, flags := payment.ParseFlags(values)
	s.machine = s.machine.Reconcile(method, flags)

	raw, ok, err := s.store.Get(ctx, KeyCart)
	if err != nil {
		return fmt.Errorf("read cart: %w", err)
	}
	if ok {
		var snap snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil || snap.Cart == nil {
			logging.Warn().Err(err).Str("session", s.id).Msg("ignoring unreadable cart snapshot")
		} else {
			s.cart = snap.Cart
			s.cityID = snap.CityID
			s.needsChange = snap.NeedsChange
			s.changeFor = snap.ChangeFor
		}
	}

	seen, _, err := s.store.Get(ctx, KeyPreOrderModalSeen)
	if err != nil {
		return fmt.Errorf("read pre-order modal date: %w", err)
	}
	s.modalSeen = seen
	return nil
}

func (s *Session) fetchConfig(ctx context.Context, cityID string) (StoreConfig, error) {
	return retry.Do(ctx, s.deps.Retry, "load store configuration", func(ctx context.Context) (StoreConfig, error) {
		cfg, err := s.deps.Config.StoreConfig(ctx, cityID)
		if errors.Is(err, model.ErrNotFound) {
			return cfg, retry.Permanent(err)
		}
		return cfg, err
	})
}

// evaluateLocked recomputes eligibility and records the date the
// pre-order modal was shown. The card return flow suppresses both
// pre-order notices.
func (s *Session) evaluateLocked(ctx context.Context) {
	e := storehours.Evaluate(s.now(), s.config.Hours, s.modalSeen)
	if s.machine.Flags.CardReturnFlowActive {
		e.ShowPreOrderModal = false
		e.ShowPreOrderBanner = false
	}
	if e.ShowPreOrderModal {
		if err := s.store.Set(ctx, KeyPreOrderModalSeen, e.ModalSeenDate); err != nil {
			logging.Warn().Err(err).Str("session", s.id).Msg("could not persist pre-order modal date")
		} else {
			s.modalSeen = e.ModalSeenDate
		}
	}
	s.eligibility = e
}

// apply runs ev through the payment machine and persists its effects.
// The in-memory machine only advances when every write succeeded.
func (s *Session) apply(ctx context.Context, ev payment.Event) (payment.Transition, error) {
	t, err := s.machine.Apply(ev)
	switch {
	case errors.Is(err, payment.ErrUnknownMethod):
		return t, wrapInvalid(CodeInvalidPaymentMethod, "Choose PIX, card or cash.", err)
	case errors.Is(err, payment.ErrInvalidTransition):
		return t, wrapInvalid(CodeInvalidTransition, "This action is not available right now.", err)
	case err != nil:
		return t, err
	}

	for _, e := range t.Effects {
		if e.Remove {
			err = s.store.Remove(ctx, e.Key)
		} else {
			err = s.store.Set(ctx, e.Key, e.Value)
		}
		if err != nil {
			return t, fmt.Errorf("persist %s: %w", e.Key, err)
		}
	}

	s.machine = t.Next
	if t.Prompt != payment.PromptNone {
		metrics.Prompts.WithLabelValues(string(t.Prompt)).Inc()
	}
	return t, nil
}

func (s *Session) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(snapshot{
		Cart:        s.cart,
		CityID:      s.cityID,
		NeedsChange: s.needsChange,
		ChangeFor:   s.changeFor,
	})
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.store.Set(ctx, KeyCart, string(data)); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	// Flags written long ago would otherwise expire before the cart does.
	if err := flagstore.Refresh(ctx, s.store, sessionKeys...); err != nil {
		logging.Warn().Err(err).Str("session", s.id).Msg("could not refresh session flags")
	}
	return nil
}

// mutateCart applies fn to a copy of the cart and swaps it in once the
// copy is persisted.
func (s *Session) mutateCart(ctx context.Context, fn func(c *cart.Cart) error) error {
	next := s.cart.Clone()
	if err := fn(next); err != nil {
		return err
	}
	prev := s.cart
	s.cart = next
	if err := s.persistLocked(ctx); err != nil {
		s.cart = prev
		return err
	}
	return nil
}

func (s *Session) checkUnlocked() error {
	switch {
	case s.machine.PixReturnPending():
		return invalid(CodeCartLocked, "Confirm your PIX payment before changing the order.")
	case s.machine.Locked():
		return invalid(CodeCartLocked, "Finish the payment in progress before changing the order.")
	}
	return nil
}

func (s *Session) AddItem(ctx context.Context, productID string, qty int, observation string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnlocked(); err != nil {
		return View{}, err
	}
	if qty < 1 {
		return View{}, invalid(CodeInvalidQuantity, "Quantity must be at least 1.")
	}

	p, err := retry.Do(ctx, s.deps.Retry, "load product", func(ctx context.Context) (model.Product, error) {
		p, err := s.deps.Products.Product(ctx, productID)
		if errors.Is(err, model.ErrNotFound) {
			return p, retry.Permanent(err)
		}
		return p, err
	})
	if errors.Is(err, model.ErrNotFound) {
		return View{}, wrapInvalid(CodeProductUnavailable, "This product is not available.", err)
	}
	if err != nil {
		return View{}, err
	}

	line := cart.Product{ID: p.ID, Name: p.Name, Price: p.Price}
	err = s.mutateCart(ctx, func(c *cart.Cart) error {
		return c.Add(line, qty, strings.TrimSpace(observation))
	})
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(payment.PromptNone), nil
}

// SetQuantity changes a line; qty <= 0 removes it.
func (s *Session) SetQuantity(ctx context.Context, productID string, qty int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnlocked(); err != nil {
		return View{}, err
	}
	err := s.mutateCart(ctx, func(c *cart.Cart) error {
		return c.SetQuantity(productID, qty)
	})
	if errors.Is(err, cart.ErrLineNotFound) {
		return View{}, wrapInvalid(CodeProductUnavailable, "This product is not in the cart.", err)
	}
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(payment.PromptNone), nil
}

func (s *Session) RemoveItem(ctx context.Context, productID string) (View, error) {
	return s.SetQuantity(ctx, productID, 0)
}

// SetDelivery sets the delivery type and address. The address can be
// edited while the cart is locked; the type cannot.
func (s *Session) SetDelivery(ctx context.Context, deliveryType, address string) (View, error) {
	dt, err := cart.ParseDeliveryType(deliveryType)
	if err != nil {
		return View{}, wrapInvalid(CodeInvalidDeliveryType, "Choose delivery or pickup.", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dt != s.cart.DeliveryType {
		if err := s.checkUnlocked(); err != nil {
			return View{}, err
		}
	}
	err = s.mutateCart(ctx, func(c *cart.Cart) error {
		c.DeliveryType = dt
		c.Address = strings.TrimSpace(address)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(payment.PromptNone), nil
}

func (s *Session) ApplyCoupon(ctx context.Context, code, userID string) (View, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return View{}, invalid(CodeCouponInvalid, "Enter a coupon code.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnlocked(); err != nil {
		return View{}, err
	}

	now := s.now()
	c, err := retry.Do(ctx, s.deps.Retry, "apply coupon", func(ctx context.Context) (model.Coupon, error) {
		c, err := s.deps.Coupons.Redeemable(ctx, code, userID, now)
		if couponRejection(err) != "" {
			return c, retry.Permanent(err)
		}
		return c, err
	})
	if msg := couponRejection(err); msg != "" {
		return View{}, wrapInvalid(CodeCouponInvalid, msg, err)
	}
	if err != nil {
		return View{}, err
	}

	err = s.mutateCart(ctx, func(cc *cart.Cart) error {
		cc.Coupon = &cart.AppliedCoupon{ID: c.ID, Code: c.Code, DiscountPercent: c.Discount}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(payment.PromptNone), nil
}

func couponRejection(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrCouponNotFound), errors.Is(err, model.ErrNotFound):
		return "Coupon not found."
	case errors.Is(err, model.ErrCouponInactive):
		return "This coupon is not active."
	case errors.Is(err, model.ErrCouponExpired):
		return "This coupon has expired or is not valid yet."
	case errors.Is(err, model.ErrCouponExhausted):
		return "This coupon has reached its usage limit."
	case errors.Is(err, model.ErrCouponNotAllowed):
		return "This coupon belongs to another customer."
	default:
		return ""
	}
}

func (s *Session) RemoveCoupon(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnlocked(); err != nil {
		return View{}, err
	}
	if err := s.mutateCart(ctx, func(c *cart.Cart) error { c.Coupon = nil; return nil }); err != nil {
		return View{}, err
	}
	return s.viewLocked(payment.PromptNone), nil
}

// SelectPayment switches the payment method. Cash change details are kept
// only while cash is selected.
func (s *Session) SelectPayment(ctx context.Context, method string, needsChange bool, changeFor decimal.Decimal) (View, error) {
	m, err := payment.ParseMethod(method)
	if err != nil {
		return View{}, wrapInvalid(CodeInvalidPaymentMethod, "Choose PIX, card or cash.", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevNeeds, prevChange := s.needsChange, s.changeFor
	if m == payment.MethodCash {
		s.needsChange, s.changeFor = needsChange, changeFor
	} else {
		s.needsChange, s.changeFor = false, decimal.Zero
	}
	// The snapshot goes first: a failed write leaves nothing switched.
	if err := s.persistLocked(ctx); err != nil {
		s.needsChange, s.changeFor = prevNeeds, prevChange
		return View{}, err
	}

	t, err := s.apply(ctx, payment.SelectMethod{Method: m})
	if err != nil {
		s.needsChange, s.changeFor = prevNeeds, prevChange
		if perr := s.persistLocked(ctx); perr != nil {
			logging.Warn().Err(perr).Str("session", s.id).Msg("could not restore change details")
		}
		return View{}, err
	}
	return s.viewLocked(t.Prompt), nil
}

func (s *Session) DismissPixInstructions(ctx context.Context) (View, error) {
	return s.applyEvent(ctx, payment.DismissPixInstructions{})
}

func (s *Session) DismissPixReturn(ctx context.Context) (View, error) {
	return s.applyEvent(ctx, payment.DismissPixReturn{})
}

// AcknowledgeCardWarning records the acknowledgement and returns the
// external payment link in View.RedirectURL.
func (s *Session) AcknowledgeCardWarning(ctx context.Context) (View, error) {
	return s.applyEvent(ctx, payment.AcknowledgeCardWarning{})
}

// ResetPayment clears every external-payment flag. It runs on logout,
// explicit cancel and when the customer leaves to track an order.
func (s *Session) ResetPayment(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.apply(ctx, payment.Reset{})
	if err != nil {
		return View{}, err
	}
	s.needsChange, s.changeFor = false, decimal.Zero
	if err := s.persistLocked(ctx); err != nil {
		return View{}, err
	}
	return s.viewLocked(t.Prompt), nil
}

func (s *Session) applyEvent(ctx context.Context, ev payment.Event) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.apply(ctx, ev)
	if err != nil {
		return View{}, err
	}
	v := s.viewLocked(t.Prompt)
	if t.Redirect {
		v.RedirectURL = s.config.Settings.CardPaymentLink()
	}
	return v, nil
}

// SelectCity switches the session to cityID and reloads the store
// configuration. When selections overlap, the latest one wins.
func (s *Session) SelectCity(ctx context.Context, cityID string) (View, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	cfg, err := s.fetchConfig(ctx, cityID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, model.ErrNotFound) {
		return View{}, wrapInvalid(CodeCityUnavailable, "We do not deliver to this city.", err)
	}
	if err != nil {
		return View{}, err
	}
	if gen != s.gen {
		return s.viewLocked(payment.PromptNone), nil
	}

	prev := s.cityID
	s.cityID = cityID
	if err := s.persistLocked(ctx); err != nil {
		s.cityID = prev
		return View{}, err
	}
	// Fetches started before this commit read the previous city.
	s.gen++
	s.config, s.configLoaded = cfg, true
	s.evaluateLocked(ctx)
	return s.viewLocked(payment.PromptNone), nil
}
