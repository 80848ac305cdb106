package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

type DressedBatch struct {
	ID          int    `gorm:"primary_key" json:"id"`
	FarmId      string `gorm:"index;not null" json:"farm_id"`
	BatchNumber string `gorm:"size:100;not null" json:"batch_number"`
	// InitialCount is the whole-bird units produced. CurrentCount is nullable
	// on purpose: legacy rows imported without it fall back to
	// ProcessedQuantity, then InitialCount (see AvailableWhole).
	InitialCount      int                `gorm:"not null" json:"initial_count"`
	CurrentCount      *int               `gorm:"default:null" json:"current_count"`
	ProcessedQuantity int                `gorm:"not null;default:0" json:"processed_quantity"`
	AverageWeight     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"average_weight"`
	CurrentStatus     DressedBatchStatus `gorm:"type:enum('InStorage','Sold','Expired','Damaged');default:InStorage" json:"current_status"`
	ExpiryDate        *time.Time         `gorm:"index" json:"expiry_date"`
	Version           int                `gorm:"not null;default:0" json:"version"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	Parts             []DressedBatchPart `gorm:"foreignKey:DressedBatchId" json:"parts"`
}

// AvailableWhole resolves the whole-bird on-hand count. The fallback chain
// (current_count -> processed_quantity -> initial_count) is a compatibility
// shim for partially-populated records; fully-populated rows never get past
// the first step.
func (b *DressedBatch) AvailableWhole() int {
	if b.CurrentCount != nil {
		return *b.CurrentCount
	}
	if b.ProcessedQuantity > 0 {
		return b.ProcessedQuantity
	}
	return b.InitialCount
}

// SetCurrentCount materializes the fallback chain before a mutation so the
// row leaves the shim behind once the ledger touches it.
func (b *DressedBatch) SetCurrentCount(count int) {
	b.CurrentCount = &count
}

// Part counts deplete independently from the whole-bird count: selling parts
// does not change CurrentCount and vice versa.
type DressedBatchPart struct {
	ID             int             `gorm:"primary_key" json:"id"`
	DressedBatchId int             `gorm:"index:idx_dressed_part,unique,priority:1;not null" json:"dressed_batch_id"`
	PartType       PartType        `gorm:"index:idx_dressed_part,unique,priority:2;type:enum('breast','thigh','wing','drumstick','liver','gizzard','feet','neck');not null" json:"part_type"`
	PartsCount     int             `gorm:"not null;default:0" json:"parts_count"`
	PartsWeight    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"parts_weight"`
	Version        int             `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDressedBatchPart struct {
	PartType    PartType        `json:"part_type" binding:"required"`
	PartsCount  int             `json:"parts_count"`
	PartsWeight decimal.Decimal `json:"parts_weight"`
}

// Validate enforces the pairing rule: a part's count and weight must both be
// present or both be zero. A count with zero weight (or the reverse) is bad
// form data, not a defaultable field.
func (input *NewDressedBatchPart) Validate() error {
	if !input.PartType.Valid() {
		return fmt.Errorf("%w: unknown part type %q", utils.ErrorInvalidInput, input.PartType)
	}
	if input.PartsCount < 0 {
		return fmt.Errorf("%w: parts count cannot be negative for %s", utils.ErrorInvalidInput, input.PartType)
	}
	if input.PartsWeight.IsNegative() {
		return fmt.Errorf("%w: parts weight cannot be negative for %s", utils.ErrorInvalidInput, input.PartType)
	}
	hasCount := input.PartsCount > 0
	hasWeight := input.PartsWeight.IsPositive()
	if hasCount != hasWeight {
		return fmt.Errorf("%w: part %s must have both count and weight, or neither", utils.ErrorInvalidInput, input.PartType)
	}
	return nil
}
