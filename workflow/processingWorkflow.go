package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/config"
	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

// ProcessBatchInput describes one slaughter run: birds leave a live batch and
// a new dressed batch (optionally broken into parts) appears, linked by a
// lineage edge. SplitRemainder moves the leftover birds into a fresh live
// batch so the original can be closed out.
type ProcessBatchInput struct {
	SourceBatchId  int                          `json:"source_batch_id" binding:"required"`
	Quantity       int                          `json:"quantity" binding:"required,gt=0"`
	NewBatchNumber string                       `json:"new_batch_number" binding:"required"`
	AverageWeight  *decimal.Decimal             `json:"average_weight"`
	ExpiryDate     *time.Time                   `json:"expiry_date"`
	Parts          []models.NewDressedBatchPart `json:"parts"`

	SplitRemainder       bool   `json:"split_remainder"`
	RemainderBatchNumber string `json:"remainder_batch_number"`
}

func (input *ProcessBatchInput) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error())
	}
	if input.SourceBatchId <= 0 {
		return fmt.Errorf("%w: source batch id is required", utils.ErrorInvalidInput)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: processing quantity must be greater than zero", utils.ErrorInvalidInput)
	}
	if input.AverageWeight != nil && input.AverageWeight.IsNegative() {
		return fmt.Errorf("%w: average weight cannot be negative", utils.ErrorInvalidInput)
	}
	seen := map[models.PartType]bool{}
	for i := range input.Parts {
		if err := input.Parts[i].Validate(); err != nil {
			return err
		}
		if seen[input.Parts[i].PartType] {
			return fmt.Errorf("%w: duplicate part type %s", utils.ErrorInvalidInput, input.Parts[i].PartType)
		}
		seen[input.Parts[i].PartType] = true
	}
	if input.SplitRemainder && input.RemainderBatchNumber == "" {
		return fmt.Errorf("%w: remainder batch number is required when splitting", utils.ErrorInvalidInput)
	}
	return nil
}

// ProcessBatchResult carries everything the run produced. Warnings are
// advisory; the transaction committed regardless.
type ProcessBatchResult struct {
	Source    *models.LiveBatch         `json:"source"`
	Dressed   *models.DressedBatch      `json:"dressed"`
	Remainder *models.LiveBatch         `json:"remainder"`
	Edge      *models.BatchRelationship `json:"edge"`
	Warnings  []string                  `json:"warnings"`
}

// ProcessBatch runs the five-step processing transaction atomically: check
// availability, deduct from the live batch, create the dressed batch, record
// the lineage edge, and optionally split the remainder into a new live batch.
// Either all of it commits or none of it does.
func (e *Engine) ProcessBatch(ctx context.Context, input *ProcessBatchInput) (*ProcessBatchResult, error) {
	funcName := "ProcessBatch"
	farmId, err := requireFarmId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var result *ProcessBatchResult
	err = e.mutate(ctx, []int{input.SourceBatchId}, func(tx StoreTx) error {
		result = nil

		source, err := tx.LiveBatch(input.SourceBatchId)
		if err != nil {
			return err
		}
		preCount := source.CurrentCount

		// The edge kind reflects what the run did to the batch as it stood,
		// so it is decided against the pre-deduction count.
		kind := models.RelationshipKindPartiallyProcessed
		if input.Quantity == preCount {
			kind = models.RelationshipKindFullyProcessed
		}

		// The ledger owns the availability check and the decrement.
		if _, err := e.ledger.Reserve(tx, source.ID, models.InventorySourceLive, nil, input.Quantity); err != nil {
			return err
		}

		avgWeight := source.AverageWeight
		if input.AverageWeight != nil {
			avgWeight = *input.AverageWeight
		}
		dressed := &models.DressedBatch{
			FarmId:            farmId,
			BatchNumber:       input.NewBatchNumber,
			InitialCount:      input.Quantity,
			ProcessedQuantity: input.Quantity,
			AverageWeight:     avgWeight,
			CurrentStatus:     models.DressedBatchStatusInStorage,
			ExpiryDate:        input.ExpiryDate,
		}
		dressed.SetCurrentCount(input.Quantity)
		for _, p := range input.Parts {
			dressed.Parts = append(dressed.Parts, models.DressedBatchPart{
				PartType:    p.PartType,
				PartsCount:  p.PartsCount,
				PartsWeight: p.PartsWeight,
			})
		}
		if err := tx.CreateDressedBatch(dressed); err != nil {
			return err
		}

		edge, err := e.graph.RecordProcessing(tx, source, dressed, kind, input.Quantity)
		if err != nil {
			return err
		}

		// Re-read for the post-reserve view before layering on the rest of
		// the run's bookkeeping.
		source, err = tx.LiveBatch(input.SourceBatchId)
		if err != nil {
			return err
		}
		source.ProcessedCount += input.Quantity

		var remainder *models.LiveBatch
		if input.SplitRemainder && source.CurrentCount > 0 {
			remainder = &models.LiveBatch{
				FarmId:        farmId,
				BatchNumber:   input.RemainderBatchNumber,
				InitialCount:  source.CurrentCount,
				CurrentCount:  source.CurrentCount,
				AverageWeight: source.AverageWeight,
				CurrentStatus: source.CurrentStatus,
				AcquiredDate:  source.AcquiredDate,
			}
			if err := tx.CreateLiveBatch(remainder); err != nil {
				return err
			}
			source.CurrentCount = 0
		}
		if source.CurrentCount == 0 {
			source.CurrentStatus = models.LiveBatchStatusProcessing
		}
		if err := tx.SaveLiveBatch(source); err != nil {
			return err
		}

		if err := e.audit(ctx, tx, "process", "live_batch", source.ID, map[string]models.FieldChange{
			"current_count":   {Old: preCount, New: source.CurrentCount},
			"processed_count": {Old: source.ProcessedCount - input.Quantity, New: source.ProcessedCount},
			"current_status":  {Old: nil, New: source.CurrentStatus},
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, "create", "dressed_batch", dressed.ID, map[string]models.FieldChange{
			"batch_number":  {Old: nil, New: dressed.BatchNumber},
			"initial_count": {Old: nil, New: dressed.InitialCount},
			"source_batch":  {Old: nil, New: source.ID},
		}); err != nil {
			return err
		}
		if remainder != nil {
			if err := e.audit(ctx, tx, "create", "live_batch", remainder.ID, map[string]models.FieldChange{
				"batch_number":  {Old: nil, New: remainder.BatchNumber},
				"initial_count": {Old: nil, New: remainder.InitialCount},
				"split_from":    {Old: nil, New: source.ID},
			}); err != nil {
				return err
			}
		}

		result = &ProcessBatchResult{
			Source:    source,
			Dressed:   dressed,
			Remainder: remainder,
			Edge:      edge,
		}

		rate, anomalous, err := e.graph.YieldRate(tx, dressed.ID)
		if err != nil {
			return err
		}
		if anomalous {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("yield rate %s%% for dressed batch %d is outside the expected range", rate.StringFixed(2), dressed.ID))
		}
		return nil
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "process batch", input, err)
		return nil, err
	}
	return result, nil
}
