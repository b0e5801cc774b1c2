// Package storehours decides whether the store takes orders right now.
package storehours

import (
	"fmt"
	"time"
)

// Fixed daily pre-order window, inclusive on both ends.
const (
	PreOrderWindowStart = "07:00"
	PreOrderWindowEnd   = "17:00"
)

// DateLayout is the format of the persisted "pre-order modal seen" date.
const DateLayout = "2006-01-02"

// OperatingHour is one row of the weekly table. Times are "HH:MM".
type OperatingHour struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	IsOpen    bool   `json:"is_open"`
	OpenTime  string `json:"open_time" validate:"required,hhmm"`
	CloseTime string `json:"close_time" validate:"required,hhmm"`
}

type Eligibility struct {
	IsOpenNow          bool `json:"is_open_now"`
	CanPreOrder        bool `json:"can_pre_order"`
	CanPlaceOrder      bool `json:"can_place_order"`
	ShowPreOrderModal  bool `json:"show_pre_order_modal"`
	ShowPreOrderBanner bool `json:"show_pre_order_banner"`
	// ModalSeenDate is the value to persist when ShowPreOrderModal is set.
	ModalSeenDate string `json:"-"`
}

// Evaluate is a pure function of the wall clock, the weekly table and the
// last date on which the pre-order modal was shown. A day that is marked
// closed never offers pre-ordering, even inside the pre-order window.
func Evaluate(now time.Time, hours []OperatingHour, modalLastSeen string) Eligibility {
	clock := now.Format("15:04")
	today, ok := find(hours, int(now.Weekday()))
	if !ok || !today.IsOpen {
		return Eligibility{}
	}

	var e Eligibility
	e.IsOpenNow = clock >= normalize(today.OpenTime) && clock < normalize(today.CloseTime)
	e.CanPreOrder = !e.IsOpenNow && clock >= PreOrderWindowStart && clock <= PreOrderWindowEnd
	e.CanPlaceOrder = e.IsOpenNow || e.CanPreOrder
	e.ShowPreOrderBanner = e.CanPreOrder

	date := now.Format(DateLayout)
	if e.CanPreOrder && modalLastSeen != date {
		e.ShowPreOrderModal = true
		e.ModalSeenDate = date
	}
	return e
}

func find(hours []OperatingHour, day int) (OperatingHour, bool) {
	for _, h := range hours {
		if h.DayOfWeek == day {
			return h, true
		}
	}
	return OperatingHour{}, false
}

// normalize trims database TIME values such as "18:00:00" to "18:00" so
// that lexical comparison matches clock order.
func normalize(t string) string {
	if len(t) > 5 {
		return t[:5]
	}
	return t
}

// ParseClock validates an "HH:MM" (or "HH:MM:SS") string.
func ParseClock(s string) (string, error) {
	n := normalize(s)
	if _, err := time.Parse("15:04", n); err != nil {
		return "", fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return n, nil
}
