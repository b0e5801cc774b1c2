package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"deliverycart/internal/model"
	"deliverycart/internal/validation"
)

const dateLayout = "2006-01-02"

type CouponService struct {
	db  *sql.DB
	loc *time.Location
}

func NewCouponService(db *sql.DB, loc *time.Location) *CouponService {
	if loc == nil {
		loc = time.UTC
	}
	return &CouponService{db: db, loc: loc}
}

// CheckRedeemable applies the coupon rules for userID at now. Validity
// dates are whole days in loc, inclusive on both ends.
func CheckRedeemable(c model.Coupon, userID string, now time.Time, loc *time.Location) error {
	if !c.Active || c.PendingApproval {
		return model.ErrCouponInactive
	}
	if c.UserID != nil && *c.UserID != userID {
		return model.ErrCouponNotAllowed
	}
	today := now.In(loc).Format(dateLayout)
	if today < c.ValidFrom.Format(dateLayout) || today > c.ValidTo.Format(dateLayout) {
		return model.ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return model.ErrCouponExhausted
	}
	return nil
}

const couponColumns = `id, name, code, discount, type, valid_from, valid_to, active, usage_limit,
	usage_count, user_id, pending_approval, created_at`

func scanCoupon(row scanner) (model.Coupon, error) {
	var (
		c      model.Coupon
		limit  sql.NullInt64
		userID sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Discount, &c.Type, &c.ValidFrom, &c.ValidTo,
		&c.Active, &limit, &c.UsageCount, &userID, &c.PendingApproval, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	if limit.Valid {
		n := int(limit.Int64)
		c.UsageLimit = &n
	}
	if userID.Valid {
		c.UserID = &userID.String
	}
	return c, nil
}

// Redeemable finds a coupon by code that userID may apply now. Codes are
// not unique: personal coupons share a code, so the customer's own coupons
// are tried first. When none qualifies the first rule failure is returned.
func (s *CouponService) Redeemable(ctx context.Context, code, userID string, now time.Time) (model.Coupon, error) {
	var uid sql.NullString
	if userID != "" {
		uid = sql.NullString{String: userID, Valid: true}
	}
	coupons, err := s.list(ctx, `
		WHERE upper(code) = upper($1) AND (user_id IS NULL OR user_id = $2 OR $2 IS NULL)
		ORDER BY COALESCE(user_id = $2, FALSE) DESC, created_at DESC`, code, uid)
	if err != nil {
		return model.Coupon{}, err
	}
	if len(coupons) == 0 {
		return model.Coupon{}, model.ErrCouponNotFound
	}

	var first error
	for _, c := range coupons {
		err := CheckRedeemable(c, userID, now, s.loc)
		if err == nil {
			return c, nil
		}
		if first == nil {
			first = err
		}
	}
	return model.Coupon{}, first
}

func (s *CouponService) IncrementUsage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	return expectOne(res)
}

// ListUsable returns the coupons userID could apply today.
func (s *CouponService) ListUsable(ctx context.Context, userID string, now time.Time) ([]model.Coupon, error) {
	all, err := s.list(ctx, `WHERE user_id IS NULL OR user_id = $1 ORDER BY valid_to`, userID)
	if err != nil {
		return nil, err
	}
	usable := make([]model.Coupon, 0, len(all))
	for _, c := range all {
		if CheckRedeemable(c, userID, now, s.loc) == nil {
			usable = append(usable, c)
		}
	}
	return usable, nil
}

func (s *CouponService) List(ctx context.Context) ([]model.Coupon, error) {
	return s.list(ctx, `ORDER BY created_at DESC`)
}

func (s *CouponService) list(ctx context.Context, tail string, args ...any) ([]model.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return coupons, nil
}

func (s *CouponService) Create(ctx context.Context, c model.Coupon) (model.Coupon, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if err := validation.Struct(c); err != nil {
		return model.Coupon{}, err
	}
	if c.ValidTo.Before(c.ValidFrom) {
		return model.Coupon{}, &validation.Error{Fields: []validation.FieldError{
			{Field: "valid_to", Tag: "gtefield", Message: "valid_to must not be before valid_from"},
		}}
	}
	if c.Type != model.CouponPromotion && c.UserID == nil {
		return model.Coupon{}, &validation.Error{Fields: []validation.FieldError{
			{Field: "user_id", Tag: "required", Message: "user_id is required for " + c.Type + " coupons"},
		}}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO coupons (name, code, discount, type, valid_from, valid_to, active, usage_limit,
			user_id, pending_approval)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+couponColumns,
		c.Name, c.Code, c.Discount, c.Type, c.ValidFrom, c.ValidTo, c.Active, c.UsageLimit,
		c.UserID, c.PendingApproval)
	created, err := scanCoupon(row)
	if err != nil {
		return model.Coupon{}, fmt.Errorf("insert coupon: %w", err)
	}
	return created, nil
}

// Approve activates a coupon waiting for an admin.
func (s *CouponService) Approve(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET active = TRUE, pending_approval = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("approve coupon: %w", err)
	}
	return expectOne(res)
}

func (s *CouponService) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE coupons SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	return expectOne(res)
}

func (s *CouponService) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	return expectOne(res)
}
