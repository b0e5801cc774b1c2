package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"deliverycart/internal/model"
)

var ErrFinalStatus = errors.New("order already reached its final status")

// Loyalty programme: every LoyaltyThreshold completed orders earn the
// customer a coupon that an admin must approve before it can be used.
const (
	LoyaltyThreshold  = 10
	LoyaltyCouponCode = "CLIENTE10"
	LoyaltyCouponName = "Cupom Fidelidade C&R Sushi"
	LoyaltyValidDays  = 7
)

var LoyaltyDiscount = decimal.NewFromInt(10)

type OrderService struct {
	db  *sql.DB
	now func() time.Time
}

func NewOrderService(db *sql.DB) *OrderService {
	return &OrderService{db: db, now: time.Now}
}

const orderColumns = `id, order_number, user_id, customer_name, customer_phone, items, subtotal,
	delivery_fee, discount, total, delivery_type, address, payment_method, change_for,
	coupon_used, status, notified_status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (model.Order, error) {
	var (
		o         model.Order
		items     []byte
		changeFor decimal.NullDecimal
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CustomerName, &o.CustomerPhone, &items,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total, &o.DeliveryType, &o.Address,
		&o.PaymentMethod, &changeFor, &o.CouponUsed, &o.Status, &o.NotifiedStatus, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decode items: %w", err)
	}
	if changeFor.Valid {
		o.ChangeFor = &changeFor.Decimal
	}
	return o, nil
}

// CreateOrder stores a checked-out cart. The new order starts in the first
// status and counts as already notified, since the checkout sends its own
// confirmation.
func (s *OrderService) CreateOrder(ctx context.Context, n model.NewOrder) (model.Order, error) {
	items, err := json.Marshal(n.Items)
	if err != nil {
		return model.Order{}, fmt.Errorf("encode items: %w", err)
	}

	var changeFor decimal.NullDecimal
	if n.ChangeFor != nil {
		changeFor = decimal.NewNullDecimal(*n.ChangeFor)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, customer_name, customer_phone, items, subtotal, delivery_fee,
			discount, total, delivery_type, address, payment_method, change_for, coupon_used,
			status, notified_status)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING `+orderColumns,
		n.UserID, n.CustomerName, n.CustomerPhone, string(items), n.Subtotal, n.DeliveryFee,
		n.Discount, n.Total, n.DeliveryType, n.Address, n.PaymentMethod, changeFor, n.CouponCode,
		model.StatusReceived,
	)
	o, err := scanOrder(row)
	if err != nil {
		return model.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.list(ctx, `WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListAll returns orders for the admin board, newest first. An empty status
// lists every order.
func (s *OrderService) ListAll(ctx context.Context, status string) ([]model.Order, error) {
	if status == "" {
		return s.list(ctx, `ORDER BY created_at DESC`)
	}
	return s.list(ctx, `WHERE status = $1 ORDER BY created_at DESC`, status)
}

// PendingNotifications returns status changes not yet forwarded to the
// customer, in the order they happened.
func (s *OrderService) PendingNotifications(ctx context.Context, limit int) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.change_id, p.change_status, `+orderColumns+`
		FROM (
			SELECT id AS change_id, status AS change_status, order_id
			FROM order_status_changes
			WHERE notified_at IS NULL
			ORDER BY id
			LIMIT $1
		) p
		JOIN orders ON orders.id = p.order_id
		ORDER BY p.change_id`, limit)
	if err != nil {
		return nil, fmt.Errorf("query status changes: %w", err)
	}
	defer rows.Close()

	var changes []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		c.Order, err = scanOrder(leadingColumns{row: rows, head: []any{&c.ID, &c.Status}})
		if err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		changes = append(changes, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return changes, nil
}

// leadingColumns scans extra columns selected before the order columns.
type leadingColumns struct {
	row  scanner
	head []any
}

func (l leadingColumns) Scan(dest ...any) error {
	return l.row.Scan(append(l.head, dest...)...)
}

func (s *OrderService) list(ctx context.Context, tail string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// MarkNotified records that the customer was told about a status change.
// The order keeps the last forwarded status in notified_status.
func (s *OrderService) MarkNotified(ctx context.Context, changeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		WITH c AS (
			UPDATE order_status_changes SET notified_at = NOW()
			WHERE id = $1 AND notified_at IS NULL
			RETURNING order_id, status
		)
		UPDATE orders SET notified_status = c.status FROM c WHERE orders.id = c.order_id`, changeID)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// AdvanceStatus moves an order one step along its flow and queues the
// change for the status worker. Reaching the final status counts a
// purchase towards the customer's loyalty reward.
func (s *OrderService) AdvanceStatus(ctx context.Context, id string) (model.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}

	next, ok := model.NextStatus(o.DeliveryType, o.Status)
	if !ok {
		return model.Order{}, ErrFinalStatus
	}
	if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, next, id); err != nil {
		return model.Order{}, fmt.Errorf("update order: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO order_status_changes (order_id, status) VALUES ($1, $2)`, id, next); err != nil {
		return model.Order{}, fmt.Errorf("record status change: %w", err)
	}
	o.Status = next

	if model.IsFinalStatus(o.DeliveryType, next) {
		if err = s.countPurchase(ctx, tx, o.UserID); err != nil {
			return model.Order{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return model.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return o, nil
}

func (s *OrderService) countPurchase(ctx context.Context, tx *sql.Tx, userID string) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`UPDATE users SET purchase_count = purchase_count + 1, updated_at = NOW() WHERE id = $1 RETURNING purchase_count`,
		userID).Scan(&count)
	if err != nil {
		return fmt.Errorf("update purchase count: %w", err)
	}
	if count < LoyaltyThreshold {
		return nil
	}

	var pending bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM coupons WHERE user_id = $1 AND code = $2 AND pending_approval)`,
		userID, LoyaltyCouponCode).Scan(&pending)
	if err != nil {
		return fmt.Errorf("check loyalty coupon: %w", err)
	}

	if !pending {
		c := LoyaltyCoupon(userID, s.now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO coupons (name, code, discount, type, valid_from, valid_to, active,
				usage_limit, user_id, pending_approval)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.Name, c.Code, c.Discount, c.Type, c.ValidFrom, c.ValidTo, c.Active,
			*c.UsageLimit, *c.UserID, c.PendingApproval)
		if err != nil {
			return fmt.Errorf("insert loyalty coupon: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE users SET purchase_count = 0 WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("reset purchase count: %w", err)
	}
	return nil
}

// LoyaltyCoupon builds the reward issued to userID on day today. It starts
// inactive, waiting for an admin.
func LoyaltyCoupon(userID string, today time.Time) model.Coupon {
	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	limit := 1
	return model.Coupon{
		Name:            LoyaltyCouponName,
		Code:            LoyaltyCouponCode,
		Discount:        LoyaltyDiscount,
		Type:            model.CouponLoyalty,
		ValidFrom:       from,
		ValidTo:         from.AddDate(0, 0, LoyaltyValidDays),
		UsageLimit:      &limit,
		UserID:          &userID,
		PendingApproval: true,
	}
}

const (
	topProductsLimit  = 4
	recentOrdersLimit = 4
)

// Dashboard aggregates every order for the admin home screen. now fixes the
// calendar day and the 30-day window of active customers.
func (s *OrderService) Dashboard(ctx context.Context, now time.Time) (model.Dashboard, error) {
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	dash := model.Dashboard{
		ByStatus:       map[string]int{},
		PaymentMethods: map[string]int{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE created_at >= $1),
			COALESCE(SUM(total) FILTER (WHERE created_at >= $1), 0),
			COUNT(DISTINCT user_id) FILTER (WHERE created_at >= $2)
		FROM orders`, dayStart, now.AddDate(0, 0, -30)).
		Scan(&dash.OrdersToday, &dash.SalesToday, &dash.ActiveCustomers)
	if err != nil {
		return model.Dashboard{}, fmt.Errorf("query order totals: %w", err)
	}

	if err := s.countBy(ctx, "status", dash.ByStatus); err != nil {
		return model.Dashboard{}, err
	}
	if err := s.countBy(ctx, "payment_method", dash.PaymentMethods); err != nil {
		return model.Dashboard{}, err
	}

	dash.TopProducts, err = s.topProducts(ctx, topProductsLimit)
	if err != nil {
		return model.Dashboard{}, err
	}
	dash.RecentOrders, err = s.list(ctx, `ORDER BY created_at DESC LIMIT $1`, recentOrdersLimit)
	if err != nil {
		return model.Dashboard{}, err
	}

	dash.Summarize()
	return dash, nil
}

// countBy tallies orders per value of column, which must be a trusted
// identifier.
func (s *OrderService) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM orders GROUP BY 1`)
	if err != nil {
		return fmt.Errorf("count orders by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

func (s *OrderService) topProducts(ctx context.Context, limit int) ([]model.ProductSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i->>'name', SUM((i->>'quantity')::int),
			SUM((i->>'quantity')::numeric * (i->>'price')::numeric)
		FROM orders, jsonb_array_elements(items) AS i
		GROUP BY 1
		ORDER BY 2 DESC, 1
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	var top []model.ProductSales
	for rows.Next() {
		var p model.ProductSales
		if err := rows.Scan(&p.Name, &p.Quantity, &p.Revenue); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		top = append(top, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return top, nil
}
