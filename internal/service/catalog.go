package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"deliverycart/internal/model"
	"deliverycart/internal/validation"
)

type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

const productColumns = `id, name, description, price, original_price, badge_text, image, category, available`

func scanProduct(row scanner) (model.Product, error) {
	var (
		p        model.Product
		original decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &original, &p.BadgeText,
		&p.Image, &p.Category, &p.Available)
	if err != nil {
		return p, err
	}
	if original.Valid {
		p.OriginalPrice = &original.Decimal
	}
	return p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// Product returns an orderable product. Unavailable products are reported
// as not found.
func (s *CatalogService) Product(ctx context.Context, id string) (model.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND available`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, model.ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Menu lists products by category. The admin view includes unavailable ones.
func (s *CatalogService) Menu(ctx context.Context, includeUnavailable bool) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeUnavailable {
		query += ` WHERE available`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return products, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if err := validation.Struct(p); err != nil {
		return model.Product{}, err
	}
	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, original_price, badge_text, image, category, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+productColumns,
		p.Name, p.Description, p.Price, nullDecimal(p.OriginalPrice), p.BadgeText, p.Image, p.Category, p.Available))
	if err != nil {
		return model.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return created, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if err := validation.Struct(p); err != nil {
		return model.Product{}, err
	}
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products SET name = $2, description = $3, price = $4, original_price = $5,
			badge_text = $6, image = $7, category = $8, available = $9
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Price, nullDecimal(p.OriginalPrice), p.BadgeText, p.Image, p.Category, p.Available))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, model.ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectOne(res)
}

// Cities lists cities by name; activeOnly hides the ones customers cannot pick.
func (s *CatalogService) Cities(ctx context.Context, activeOnly bool) ([]model.City, error) {
	query := `SELECT id, name, active FROM cities`
	if activeOnly {
		query += ` WHERE active`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	var cities []model.City
	for rows.Next() {
		var c model.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return cities, nil
}

func (s *CatalogService) CreateCity(ctx context.Context, c model.City) (model.City, error) {
	if err := validation.Struct(c); err != nil {
		return model.City{}, err
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO cities (name, active) VALUES ($1, $2) RETURNING id`, c.Name, c.Active).Scan(&c.ID)
	if isUniqueViolation(err) {
		return model.City{}, &validation.Error{Fields: []validation.FieldError{
			{Field: "name", Tag: "unique", Message: "name is already registered"},
		}}
	}
	if err != nil {
		return model.City{}, fmt.Errorf("insert city: %w", err)
	}
	return c, nil
}

func (s *CatalogService) SetCityActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cities SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("update city: %w", err)
	}
	return expectOne(res)
}

func (s *CatalogService) DeleteCity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete city: %w", err)
	}
	return expectOne(res)
}

const highlightColumns = `id, name, price, image_url, border_color, order_index, shadow_size`

func scanHighlight(row scanner) (model.Highlight, error) {
	var h model.Highlight
	err := row.Scan(&h.ID, &h.Name, &h.Price, &h.ImageURL, &h.BorderColor, &h.OrderIndex, &h.ShadowSize)
	return h, err
}

// Highlights lists featured dishes in display order.
func (s *CatalogService) Highlights(ctx context.Context) ([]model.Highlight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+highlightColumns+` FROM highlights ORDER BY order_index, created_at`)
	if err != nil {
		return nil, fmt.Errorf("query highlights: %w", err)
	}
	defer rows.Close()

	var highlights []model.Highlight
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		highlights = append(highlights, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return highlights, nil
}

func withHighlightDefaults(h model.Highlight) model.Highlight {
	if h.BorderColor == "" {
		h.BorderColor = model.DefaultHighlightBorder
	}
	if h.ShadowSize == 0 {
		h.ShadowSize = model.DefaultHighlightShadow
	}
	return h
}

// CreateHighlight appends h after the last highlight unless it carries an
// explicit position.
func (s *CatalogService) CreateHighlight(ctx context.Context, h model.Highlight) (model.Highlight, error) {
	h = withHighlightDefaults(h)
	if err := validation.Struct(h); err != nil {
		return model.Highlight{}, err
	}
	created, err := scanHighlight(s.db.QueryRowContext(ctx, `
		INSERT INTO highlights (name, price, image_url, border_color, order_index, shadow_size)
		VALUES ($1, $2, $3, $4,
			COALESCE(NULLIF($5, 0), (SELECT COALESCE(MAX(order_index) + 1, 0) FROM highlights)), $6)
		RETURNING `+highlightColumns,
		h.Name, h.Price, h.ImageURL, h.BorderColor, h.OrderIndex, h.ShadowSize))
	if err != nil {
		return model.Highlight{}, fmt.Errorf("insert highlight: %w", err)
	}
	return created, nil
}

func (s *CatalogService) UpdateHighlight(ctx context.Context, h model.Highlight) (model.Highlight, error) {
	h = withHighlightDefaults(h)
	if err := validation.Struct(h); err != nil {
		return model.Highlight{}, err
	}
	updated, err := scanHighlight(s.db.QueryRowContext(ctx, `
		UPDATE highlights SET name = $2, price = $3, image_url = $4, border_color = $5,
			order_index = $6, shadow_size = $7
		WHERE id = $1
		RETURNING `+highlightColumns,
		h.ID, h.Name, h.Price, h.ImageURL, h.BorderColor, h.OrderIndex, h.ShadowSize))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Highlight{}, model.ErrNotFound
	}
	if err != nil {
		return model.Highlight{}, fmt.Errorf("update highlight: %w", err)
	}
	return updated, nil
}

func (s *CatalogService) DeleteHighlight(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM highlights WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	return expectOne(res)
}
