package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/config"
	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const moduleName = "workflow"

// maxConflictRetries bounds how often a mutation is replayed after a version
// conflict before the conflict is surfaced to the caller.
const maxConflictRetries = 3

// Engine ties the inventory ledger and the batch graph to a Store and runs
// every mutation inside the store's locking and retry discipline. Both
// collaborators come in through the constructor; nothing here reads ambient
// package state.
type Engine struct {
	store  Store
	ledger Ledger
	graph  Graph
	logger *logrus.Logger
}

func NewEngine(store Store, ledger Ledger, graph Graph, logger *logrus.Logger) *Engine {
	return &Engine{
		store:  store,
		ledger: ledger,
		graph:  graph,
		logger: logger,
	}
}

// mutate runs fn under the batch locks and replays it on version conflicts.
// fn must read its records fresh on every attempt.
func (e *Engine) mutate(ctx context.Context, batchIds []int, fn func(tx StoreTx) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = e.store.WithBatchLock(ctx, batchIds, fn)
		if !errors.Is(err, utils.ErrorConcurrencyConflict) {
			return err
		}
	}
	return err
}

// audit appends a history row built from the context identity. A mutation
// without a farm identity is rejected before it gets this far, so failure
// here is a programming error worth surfacing.
func (e *Engine) audit(ctx context.Context, tx StoreTx, actionType string, referenceType string, referenceId int, changes map[string]models.FieldChange) error {
	h, err := models.NewHistory(ctx, actionType, referenceType, referenceId, changes)
	if err != nil {
		return err
	}
	return tx.AppendHistory(h)
}

func requireFarmId(ctx context.Context) (string, error) {
	farmId, ok := utils.GetFarmIdFromContext(ctx)
	if !ok || farmId == "" {
		return "", fmt.Errorf("%w: farm id missing from context", utils.ErrorInvalidInput)
	}
	return farmId, nil
}

// CreateLiveBatch registers a newly acquired flock. CurrentCount starts equal
// to InitialCount; InitialCount never changes afterwards.
func (e *Engine) CreateLiveBatch(ctx context.Context, input *models.NewLiveBatch) (*models.LiveBatch, error) {
	funcName := "CreateLiveBatch"
	farmId, err := requireFarmId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	batch := &models.LiveBatch{
		FarmId:        farmId,
		BatchNumber:   input.BatchNumber,
		InitialCount:  input.InitialCount,
		CurrentCount:  input.InitialCount,
		AverageWeight: input.AverageWeight,
		CurrentStatus: models.LiveBatchStatusHealthy,
		AcquiredDate:  input.AcquiredDate,
	}
	err = e.mutate(ctx, nil, func(tx StoreTx) error {
		if err := tx.CreateLiveBatch(batch); err != nil {
			return err
		}
		return e.audit(ctx, tx, "create", "live_batch", batch.ID, map[string]models.FieldChange{
			"initial_count": {Old: nil, New: batch.InitialCount},
			"batch_number":  {Old: nil, New: batch.BatchNumber},
		})
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "create live batch", input, err)
		return nil, err
	}
	return batch, nil
}

// RecordMortality deducts dead birds from a live batch. Mortality itself
// stays derived; this only moves CurrentCount.
func (e *Engine) RecordMortality(ctx context.Context, batchId int, count int) (*models.LiveBatch, error) {
	funcName := "RecordMortality"
	if _, err := requireFarmId(ctx); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: mortality count must be greater than zero", utils.ErrorInvalidInput)
	}

	var batch *models.LiveBatch
	err := e.mutate(ctx, []int{batchId}, func(tx StoreTx) error {
		b, err := tx.LiveBatch(batchId)
		if err != nil {
			return err
		}
		if count > b.CurrentCount {
			return &utils.InsufficientInventoryError{
				BatchId:   batchId,
				Source:    string(models.InventorySourceLive),
				Requested: count,
				Available: b.CurrentCount,
			}
		}
		before := b.CurrentCount
		b.CurrentCount -= count
		if err := tx.SaveLiveBatch(b); err != nil {
			return err
		}
		batch = b
		return e.audit(ctx, tx, "mortality", "live_batch", b.ID, map[string]models.FieldChange{
			"current_count": {Old: before, New: b.CurrentCount},
		})
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "record mortality", map[string]interface{}{"batch_id": batchId, "count": count}, err)
		return nil, err
	}
	return batch, nil
}

// ExpireDressedBatches marks every InStorage dressed batch whose expiry date
// has passed. Each batch is moved in its own locked mutation so the sweep
// never blocks the whole inventory; the count of flipped batches is returned.
func (e *Engine) ExpireDressedBatches(ctx context.Context, asOf time.Time) (int, error) {
	funcName := "ExpireDressedBatches"

	var candidates []int
	err := e.store.View(ctx, func(tx StoreTx) error {
		batches, err := tx.ExpiredDressedBatches(asOf)
		if err != nil {
			return err
		}
		for _, b := range batches {
			candidates = append(candidates, b.ID)
		}
		return nil
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "list expired batches", asOf, err)
		return 0, err
	}

	expired := 0
	for _, id := range candidates {
		err := e.mutate(ctx, []int{id}, func(tx StoreTx) error {
			b, err := tx.DressedBatch(id)
			if err != nil {
				return err
			}
			// A sale or manual change may have beaten the sweep here.
			if b.CurrentStatus != models.DressedBatchStatusInStorage {
				return nil
			}
			if b.ExpiryDate == nil || b.ExpiryDate.After(asOf) {
				return nil
			}
			before := b.CurrentStatus
			b.CurrentStatus = models.DressedBatchStatusExpired
			if err := tx.SaveDressedBatch(b); err != nil {
				return err
			}
			expired++
			// The sweep runs without a request identity, so the row is built
			// from the batch itself.
			return tx.AppendHistory(&models.History{
				FarmId:        b.FarmId,
				ActionType:    "expire",
				ReferenceType: "dressed_batch",
				ReferenceID:   b.ID,
				ChangedFields: mustFieldChanges(map[string]models.FieldChange{
					"current_status": {Old: before, New: b.CurrentStatus},
				}),
				UserName: "system",
			})
		})
		if err != nil {
			config.LogError(e.logger, moduleName, funcName, "expire batch", id, err)
			return expired, err
		}
	}
	return expired, nil
}

func mustFieldChanges(changes map[string]models.FieldChange) string {
	out, err := utils.MarshalToJSON(changes)
	if err != nil {
		return "{}"
	}
	return out
}

// AvailableQuantity reports the sellable units for a batch and source without
// taking any locks.
func (e *Engine) AvailableQuantity(ctx context.Context, batchId int, source models.InventorySource, part *models.PartType) (int, error) {
	var available int
	err := e.store.View(ctx, func(tx StoreTx) error {
		var err error
		available, err = e.ledger.Available(tx, batchId, source, part)
		return err
	})
	return available, err
}

// Lineage resolves a dressed batch's processed-from edge and its source live
// batch. Both are nil when the batch has no recorded lineage.
func (e *Engine) Lineage(ctx context.Context, dressedBatchId int) (*models.BatchRelationship, *models.LiveBatch, error) {
	var edge *models.BatchRelationship
	var source *models.LiveBatch
	err := e.store.View(ctx, func(tx StoreTx) error {
		if _, err := tx.DressedBatch(dressedBatchId); err != nil {
			return err
		}
		var err error
		edge, source, err = e.graph.LineageOf(tx, dressedBatchId)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return edge, source, nil
}

// Yield returns the yield rate for a dressed batch as a percentage, plus an
// anomalous flag when the rate falls outside [0, 100]. The rate is reported
// as computed, never clamped.
func (e *Engine) Yield(ctx context.Context, dressedBatchId int) (decimal.Decimal, bool, error) {
	var rate decimal.Decimal
	var anomalous bool
	err := e.store.View(ctx, func(tx StoreTx) error {
		var err error
		rate, anomalous, err = e.graph.YieldRate(tx, dressedBatchId)
		return err
	})
	return rate, anomalous, err
}
