package models

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

func validNewOrder() NewOrder {
	return NewOrder{
		CustomerName:    "Daw Mya",
		OrderDate:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		QuantityCount:   10,
		UnitSize:        decimal.NewFromFloat(2.5),
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: CalculationModeCountTimesSizeTimesPrice,
	}
}

func TestNewOrderValidateModeConditional(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(o *NewOrder)
		wantErr bool
	}{
		{"full three-factor order", func(o *NewOrder) {}, false},
		{"count mode without size", func(o *NewOrder) {
			o.CalculationMode = CalculationModeCountTimesPrice
			o.UnitSize = decimal.Zero
		}, false},
		{"size mode without count", func(o *NewOrder) {
			o.CalculationMode = CalculationModeSizeTimesPrice
			o.QuantityCount = 0
		}, false},
		{"three-factor mode missing count", func(o *NewOrder) { o.QuantityCount = 0 }, true},
		{"three-factor mode missing size", func(o *NewOrder) { o.UnitSize = decimal.Zero }, true},
		{"count mode missing count", func(o *NewOrder) {
			o.CalculationMode = CalculationModeCountTimesPrice
			o.QuantityCount = 0
		}, true},
		{"size mode missing size", func(o *NewOrder) {
			o.CalculationMode = CalculationModeSizeTimesPrice
			o.UnitSize = decimal.Zero
		}, true},
		{"zero price", func(o *NewOrder) { o.UnitPrice = decimal.Zero }, true},
		{"negative paid", func(o *NewOrder) { o.AmountPaid = decimal.NewFromInt(-1) }, true},
		{"unknown mode", func(o *NewOrder) { o.CalculationMode = "weight_cost" }, true},
		{"missing customer", func(o *NewOrder) { o.CustomerName = "" }, true},
		{"zero date", func(o *NewOrder) { o.OrderDate = time.Time{} }, true},
		{"part order without part type", func(o *NewOrder) { o.InventorySource = InventorySourceDressedPart }, true},
		{"part order with part type", func(o *NewOrder) {
			o.InventorySource = InventorySourceDressedPart
			p := PartTypeBreast
			o.PartType = &p
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validNewOrder()
			tc.mutate(&input)
			err := input.Validate()
			if tc.wantErr && !errors.Is(err, utils.ErrorInvalidInput) {
				t.Fatalf("err = %v, want invalid input", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestOrderRecalculateRespectsOverride(t *testing.T) {
	o := Order{
		QuantityCount:   10,
		UnitSize:        decimal.NewFromFloat(2.5),
		UnitPrice:       decimal.NewFromInt(500),
		AmountPaid:      decimal.NewFromInt(12500),
		CalculationMode: CalculationModeCountTimesSizeTimesPrice,
	}
	o.Recalculate()
	if !o.OrderTotal.Equal(decimal.NewFromInt(12500)) {
		t.Fatalf("total = %s, want 12500", o.OrderTotal)
	}
	if o.CurrentStatus != OrderStatusPaid {
		t.Fatalf("status = %s, want Paid", o.CurrentStatus)
	}

	// With the override flag set, recalculation refreshes money but leaves
	// the status alone.
	o.CurrentStatus = OrderStatusCompleted
	o.StatusOverridden = true
	o.AmountPaid = decimal.NewFromInt(1000)
	o.Recalculate()
	if o.CurrentStatus != OrderStatusCompleted {
		t.Fatalf("status = %s with override, want Completed", o.CurrentStatus)
	}
	if !o.Balance.Equal(decimal.NewFromInt(11500)) {
		t.Fatalf("balance = %s, want 11500", o.Balance)
	}
	if o.DerivedStatus() != OrderStatusPartial {
		t.Fatalf("derived = %s, want Partial", o.DerivedStatus())
	}
}
