package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type hourRow struct {
	Day   int    `json:"day_of_week" validate:"min=0,max=6"`
	Open  string `json:"open_time" validate:"required,hhmm"`
	Close string `json:"close_time" validate:"required,hhmm"`
}

type priced struct {
	Price decimal.Decimal `json:"price" validate:"gt=0"`
}

func TestStruct_Clock(t *testing.T) {
	tests := []struct {
		name    string
		row     hourRow
		wantErr bool
	}{
		{"valid", hourRow{Day: 1, Open: "18:00", Close: "23:30"}, false},
		{"database form", hourRow{Day: 0, Open: "18:00:00", Close: "23:00:00"}, false},
		{"bad minutes", hourRow{Day: 1, Open: "18:75", Close: "23:00"}, true},
		{"day out of range", hourRow{Day: 7, Open: "18:00", Close: "23:00"}, true},
		{"missing close", hourRow{Day: 2, Open: "18:00"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Struct(&tc.row)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Struct() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(&hourRow{Day: 9, Open: "x", Close: "23:00"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("fields = %+v", verr.Fields)
	}
	if verr.Fields[0].Field != "day_of_week" || verr.Fields[1].Field != "open_time" {
		t.Errorf("fields = %+v", verr.Fields)
	}
	if verr.Fields[1].Message != "open_time must be a time in HH:MM format" {
		t.Errorf("message = %q", verr.Fields[1].Message)
	}
}

func TestStruct_PositiveDecimal(t *testing.T) {
	if err := Struct(&priced{Price: decimal.RequireFromString("29.90")}); err != nil {
		t.Errorf("positive price rejected: %v", err)
	}
	if err := Struct(&priced{Price: decimal.Zero}); err == nil {
		t.Error("zero price accepted")
	}
}
