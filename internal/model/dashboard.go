package model

import "github.com/shopspring/decimal"

// ProductSales is how much of one dish was sold across all orders.
type ProductSales struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Dashboard summarises orders for the admin home screen. Today is the
// store's calendar day.
type Dashboard struct {
	SalesToday      decimal.Decimal            `json:"sales_today"`
	OrdersToday     int                        `json:"orders_today"`
	AverageTicket   decimal.Decimal            `json:"average_ticket_today"`
	ActiveCustomers int                        `json:"active_customers_30d"`
	ByStatus        map[string]int             `json:"by_status"`
	PaymentMethods  map[string]int             `json:"payment_methods"`
	PaymentShares   map[string]decimal.Decimal `json:"payment_shares"`
	TopProducts     []ProductSales             `json:"top_products"`
	RecentOrders    []Order                    `json:"recent_orders"`
}

// Summarize fills the fields derived from the raw counts.
func (d *Dashboard) Summarize() {
	d.AverageTicket = decimal.Zero
	if d.OrdersToday > 0 {
		d.AverageTicket = d.SalesToday.Div(decimal.NewFromInt(int64(d.OrdersToday))).Round(2)
	}
	d.PaymentShares = PaymentShares(d.PaymentMethods)
}

// PaymentShares returns each known method's share of counts in percent,
// rounded to one decimal. Every method is present, at zero when unused.
func PaymentShares(counts map[string]int) map[string]decimal.Decimal {
	total := 0
	for _, n := range counts {
		total += n
	}
	shares := make(map[string]decimal.Decimal, 3)
	for _, m := range []string{"pix", "card", "cash"} {
		shares[m] = decimal.Zero
		if total > 0 {
			shares[m] = decimal.NewFromInt(int64(counts[m])).
				Mul(decimal.NewFromInt(100)).
				Div(decimal.NewFromInt(int64(total))).
				Round(1)
		}
	}
	return shares
}
