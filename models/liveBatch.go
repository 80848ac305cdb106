package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

type LiveBatch struct {
	ID          int    `gorm:"primary_key" json:"id"`
	FarmId      string `gorm:"index;not null" json:"farm_id"`
	BatchNumber string `gorm:"size:100;not null" json:"batch_number" binding:"required"`
	// InitialCount is immutable after creation; CurrentCount only ever
	// decreases (sales, mortality, processing).
	InitialCount   int             `gorm:"not null" json:"initial_count" binding:"required"`
	CurrentCount   int             `gorm:"not null" json:"current_count"`
	ProcessedCount int             `gorm:"not null;default:0" json:"processed_count"`
	AverageWeight  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_weight"`
	CurrentStatus  LiveBatchStatus `gorm:"type:enum('Healthy','Sick','Quarantine','Processing');default:Healthy" json:"current_status"`
	AcquiredDate   time.Time       `json:"acquired_date"`
	Version        int             `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Mortality is always derived, never stored:
// initial - current - processed out, floored at zero.
func (b *LiveBatch) Mortality() int {
	m := b.InitialCount - b.CurrentCount - b.ProcessedCount
	if m < 0 {
		return 0
	}
	return m
}

type NewLiveBatch struct {
	BatchNumber   string          `json:"batch_number" binding:"required"`
	InitialCount  int             `json:"initial_count" binding:"required,gt=0"`
	AverageWeight decimal.Decimal `json:"average_weight"`
	AcquiredDate  time.Time       `json:"acquired_date"`
}

func (input *NewLiveBatch) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error())
	}
	if input.InitialCount <= 0 {
		return fmt.Errorf("%w: initial count must be greater than zero", utils.ErrorInvalidInput)
	}
	if input.AverageWeight.IsNegative() {
		return fmt.Errorf("%w: average weight cannot be negative", utils.ErrorInvalidInput)
	}
	return nil
}
