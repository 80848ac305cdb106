package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID           int       `gorm:"primary_key" json:"id"`
	FarmId       string    `gorm:"index;not null" json:"farm_id"`
	CustomerName string    `gorm:"size:100;not null" json:"customer_name" binding:"required"`
	OrderDate    time.Time `gorm:"not null" json:"order_date" binding:"required"`

	QuantityCount   int             `gorm:"default:0" json:"quantity_count"`
	UnitSize        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_size"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	AmountPaid      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	CalculationMode CalculationMode `gorm:"type:enum('count_cost','size_cost','count_size_cost');default:count_size_cost" json:"calculation_mode"`

	InventorySource InventorySource `gorm:"type:enum('L','DW','DP');default:L" json:"inventory_source"`
	PartType        *PartType       `gorm:"type:enum('breast','thigh','wing','drumstick','liver','gizzard','feet','neck');default:null" json:"part_type"`
	// SourceBatchId is a weak reference (availability lookups only); 0 means
	// the order is not drawn against a tracked batch.
	SourceBatchId int `gorm:"index;default:0" json:"source_batch_id"`

	// Computed fields are cached at commit/update time so every consumer
	// agrees; nothing re-derives them ad hoc.
	OrderTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"order_total"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`

	CurrentStatus OrderStatus `gorm:"type:enum('Pending','Partial','Paid','Confirmed','Completed','Cancelled');default:Pending" json:"current_status"`
	// StatusOverridden marks a status set explicitly on edit rather than
	// derived from payment state. Cleared by any payment-affecting edit.
	StatusOverridden bool `gorm:"not null;default:false" json:"status_overridden"`

	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Recalculate refreshes the cached total, balance, and (unless the status is
// an explicit override) the derived status, using this order's own
// calculation mode. Called at every defined transition point: commit, edit,
// batch update.
func (o *Order) Recalculate() {
	o.OrderTotal = utils.CalculateOrderTotal(o.QuantityCount, o.UnitSize, o.UnitPrice, string(o.CalculationMode))
	o.Balance = utils.CalculateBalance(o.OrderTotal, o.AmountPaid)
	if !o.StatusOverridden {
		o.CurrentStatus = OrderStatus(utils.DerivePaymentStatus(o.OrderTotal, o.AmountPaid))
	}
}

// DerivedStatus returns what the status would be from payment state alone,
// ignoring any override.
func (o *Order) DerivedStatus() OrderStatus {
	return OrderStatus(utils.DerivePaymentStatus(o.OrderTotal, o.AmountPaid))
}

type NewOrder struct {
	CustomerName    string          `json:"customer_name" binding:"required"`
	OrderDate       time.Time       `json:"order_date" binding:"required"`
	QuantityCount   int             `json:"quantity_count"`
	UnitSize        decimal.Decimal `json:"unit_size"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	CalculationMode CalculationMode `json:"calculation_mode" binding:"required"`
	InventorySource InventorySource `json:"inventory_source"`
	PartType        *PartType       `json:"part_type"`
	SourceBatchId   int             `json:"source_batch_id"`
}

// Validate covers the field-level rules; availability against the referenced
// batch is checked by the order workflow, which can see the ledger.
func (input *NewOrder) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error())
	}
	if input.OrderDate.IsZero() {
		return fmt.Errorf("%w: order date is required", utils.ErrorInvalidInput)
	}
	if !input.CalculationMode.Valid() {
		return fmt.Errorf("%w: unknown calculation mode %q", utils.ErrorInvalidInput, input.CalculationMode)
	}
	if !input.UnitPrice.IsPositive() {
		return fmt.Errorf("%w: unit price must be greater than zero", utils.ErrorInvalidInput)
	}
	// Mode-conditional requirements: the factors the mode multiplies must be
	// present.
	if input.CalculationMode != CalculationModeSizeTimesPrice && input.QuantityCount <= 0 {
		return fmt.Errorf("%w: quantity count is required for mode %s", utils.ErrorInvalidInput, input.CalculationMode)
	}
	if input.CalculationMode != CalculationModeCountTimesPrice && !input.UnitSize.IsPositive() {
		return fmt.Errorf("%w: unit size is required for mode %s", utils.ErrorInvalidInput, input.CalculationMode)
	}
	if input.AmountPaid.IsNegative() {
		return fmt.Errorf("%w: amount paid cannot be negative", utils.ErrorInvalidInput)
	}
	if input.InventorySource != "" && !input.InventorySource.Valid() {
		return fmt.Errorf("%w: unknown inventory source %q", utils.ErrorInvalidInput, input.InventorySource)
	}
	if input.InventorySource == InventorySourceDressedPart {
		if input.PartType == nil || !input.PartType.Valid() {
			return fmt.Errorf("%w: part type is required for dressed-part orders", utils.ErrorInvalidInput)
		}
	}
	if input.SourceBatchId < 0 {
		return fmt.Errorf("%w: source batch id cannot be negative", utils.ErrorInvalidInput)
	}
	return nil
}

// UpdateOrderInput carries a partial edit; nil means "leave unchanged".
// StatusOverride is the documented escape hatch for setting a status the
// payment state would not derive.
type UpdateOrderInput struct {
	CustomerName    *string          `json:"customer_name"`
	OrderDate       *time.Time       `json:"order_date"`
	QuantityCount   *int             `json:"quantity_count"`
	UnitSize        *decimal.Decimal `json:"unit_size"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	AmountPaid      *decimal.Decimal `json:"amount_paid"`
	CalculationMode *CalculationMode `json:"calculation_mode"`
	StatusOverride  *OrderStatus     `json:"status_override"`
}

// PaymentAffecting reports whether this edit touches a field the total or
// balance depends on. Such edits re-derive status and drop any prior
// override.
func (input *UpdateOrderInput) PaymentAffecting() bool {
	return input.QuantityCount != nil ||
		input.UnitSize != nil ||
		input.UnitPrice != nil ||
		input.AmountPaid != nil ||
		input.CalculationMode != nil
}

type BatchUpdateOrdersInput struct {
	OrderIds   []int            `json:"order_ids" binding:"required"`
	Status     *OrderStatus     `json:"status"`
	AmountPaid *decimal.Decimal `json:"amount_paid"`
}

func (input *BatchUpdateOrdersInput) Validate() error {
	if len(input.OrderIds) == 0 {
		return fmt.Errorf("%w: order ids are required", utils.ErrorInvalidInput)
	}
	if input.Status == nil && input.AmountPaid == nil {
		return fmt.Errorf("%w: batch update needs a status or an amount paid", utils.ErrorInvalidInput)
	}
	if input.Status != nil && !input.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", utils.ErrorInvalidInput, *input.Status)
	}
	if input.AmountPaid != nil && input.AmountPaid.IsNegative() {
		return fmt.Errorf("%w: amount paid cannot be negative", utils.ErrorInvalidInput)
	}
	return nil
}
