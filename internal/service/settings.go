package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"deliverycart/internal/checkout"
	"deliverycart/internal/model"
	"deliverycart/internal/storehours"
	"deliverycart/internal/validation"
)

var ErrUnknownSetting = errors.New("unknown setting")

type SettingsService struct {
	db *sql.DB
}

func NewSettingsService(db *sql.DB) *SettingsService {
	return &SettingsService{db: db}
}

// StoreConfig loads everything a checkout needs for cityID. An empty
// cityID skips the city check.
func (s *SettingsService) StoreConfig(ctx context.Context, cityID string) (checkout.StoreConfig, error) {
	if cityID != "" {
		var active bool
		err := s.db.QueryRowContext(ctx, `SELECT active FROM cities WHERE id = $1`, cityID).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
			return checkout.StoreConfig{}, model.ErrNotFound
		}
		if err != nil {
			return checkout.StoreConfig{}, fmt.Errorf("get city: %w", err)
		}
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return checkout.StoreConfig{}, err
	}
	hours, err := s.Hours(ctx)
	if err != nil {
		return checkout.StoreConfig{}, err
	}
	return checkout.StoreConfig{Settings: settings, Hours: hours}, nil
}

func (s *SettingsService) Settings(ctx context.Context) (model.Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := model.Settings{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return settings, nil
}

// CheckSetting rejects unknown keys and malformed values.
func CheckSetting(key, value string) error {
	switch key {
	case model.SettingDeliveryFee:
		fee, err := decimal.NewFromString(value)
		if err != nil || fee.IsNegative() {
			return &validation.Error{Fields: []validation.FieldError{
				{Field: key, Tag: "gte", Message: key + " must be a non-negative amount"},
			}}
		}
	case model.SettingPixKey, model.SettingCardPaymentLink:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return nil
}

func (s *SettingsService) SetSetting(ctx context.Context, key, value string) error {
	if err := CheckSetting(key, value); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

func (s *SettingsService) Hours(ctx context.Context) ([]storehours.OperatingHour, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, is_open, to_char(open_time, 'HH24:MI'), to_char(close_time, 'HH24:MI')
		FROM operating_hours ORDER BY day_of_week`)
	if err != nil {
		return nil, fmt.Errorf("query hours: %w", err)
	}
	defer rows.Close()

	var hours []storehours.OperatingHour
	for rows.Next() {
		var h storehours.OperatingHour
		if err := rows.Scan(&h.DayOfWeek, &h.IsOpen, &h.OpenTime, &h.CloseTime); err != nil {
			return nil, fmt.Errorf("scan hours: %w", err)
		}
		hours = append(hours, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return hours, nil
}

// SetHours replaces the rows for the given days in one transaction.
func (s *SettingsService) SetHours(ctx context.Context, hours []storehours.OperatingHour) error {
	for _, h := range hours {
		if err := validation.Struct(h); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, h := range hours {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO operating_hours (day_of_week, is_open, open_time, close_time)
			VALUES ($1, $2, $3::time, $4::time)
			ON CONFLICT (day_of_week) DO UPDATE
			SET is_open = EXCLUDED.is_open, open_time = EXCLUDED.open_time, close_time = EXCLUDED.close_time`,
			h.DayOfWeek, h.IsOpen, h.OpenTime, h.CloseTime)
		if err != nil {
			return fmt.Errorf("upsert hours: %w", err)
		}
	}

	return tx.Commit()
}
