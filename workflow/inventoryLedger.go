package workflow

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
)

// Ledger is the single authority over sellable quantities. All three
// inventory sources go through it: live birds (L), dressed whole birds (DW),
// and dressed parts (DP). Reserve and Release are check-and-move operations
// over a StoreTx, so their atomicity comes from the transaction they run in.
type Ledger struct{}

func NewLedger() Ledger {
	return Ledger{}
}

// Available resolves the on-hand quantity for one source of one batch.
// A missing part row counts as zero, not as an error: a batch that never
// produced wings simply has no wings.
func (Ledger) Available(tx StoreTx, batchId int, source models.InventorySource, part *models.PartType) (int, error) {
	switch source {
	case models.InventorySourceLive:
		b, err := tx.LiveBatch(batchId)
		if err != nil {
			return 0, err
		}
		return b.CurrentCount, nil

	case models.InventorySourceDressedWhole:
		b, err := tx.DressedBatch(batchId)
		if err != nil {
			return 0, err
		}
		return b.AvailableWhole(), nil

	case models.InventorySourceDressedPart:
		if part == nil {
			return 0, fmt.Errorf("%w: part type is required for dressed-part availability", utils.ErrorInvalidInput)
		}
		if _, err := tx.DressedBatch(batchId); err != nil {
			return 0, err
		}
		p, err := tx.DressedBatchPart(batchId, *part)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return 0, nil
			}
			return 0, err
		}
		return p.PartsCount, nil
	}
	return 0, fmt.Errorf("%w: unknown inventory source %q", utils.ErrorInvalidInput, source)
}

// Reserve atomically checks availability, decrements, and returns the new
// available quantity. Quantity must be positive; a zero-quantity reservation
// is a caller bug, not a no-op.
func (l Ledger) Reserve(tx StoreTx, batchId int, source models.InventorySource, part *models.PartType, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: reserve quantity must be greater than zero", utils.ErrorInvalidInput)
	}
	available, err := l.Available(tx, batchId, source, part)
	if err != nil {
		return 0, err
	}
	if quantity > available {
		return available, &utils.InsufficientInventoryError{
			BatchId:   batchId,
			Source:    string(source),
			Requested: quantity,
			Available: available,
		}
	}
	remaining := available - quantity

	switch source {
	case models.InventorySourceLive:
		b, err := tx.LiveBatch(batchId)
		if err != nil {
			return 0, err
		}
		b.CurrentCount = remaining
		return remaining, tx.SaveLiveBatch(b)

	case models.InventorySourceDressedWhole:
		b, err := tx.DressedBatch(batchId)
		if err != nil {
			return 0, err
		}
		b.SetCurrentCount(remaining)
		return remaining, tx.SaveDressedBatch(b)

	case models.InventorySourceDressedPart:
		p, err := tx.DressedBatchPart(batchId, *part)
		if err != nil {
			return 0, err
		}
		p.PartsCount = remaining
		return remaining, tx.SaveDressedBatchPart(p)
	}
	return 0, fmt.Errorf("%w: unknown inventory source %q", utils.ErrorInvalidInput, source)
}

// Release returns previously reserved units, for order edits and
// cancellations. Whole-bird counts are capped at the batch's initial count
// so a double release cannot mint inventory.
func (Ledger) Release(tx StoreTx, batchId int, source models.InventorySource, part *models.PartType, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: release quantity must be greater than zero", utils.ErrorInvalidInput)
	}

	switch source {
	case models.InventorySourceLive:
		b, err := tx.LiveBatch(batchId)
		if err != nil {
			return err
		}
		b.CurrentCount += quantity
		if b.CurrentCount > b.InitialCount {
			b.CurrentCount = b.InitialCount
		}
		return tx.SaveLiveBatch(b)

	case models.InventorySourceDressedWhole:
		b, err := tx.DressedBatch(batchId)
		if err != nil {
			return err
		}
		count := b.AvailableWhole() + quantity
		if count > b.InitialCount {
			count = b.InitialCount
		}
		b.SetCurrentCount(count)
		return tx.SaveDressedBatch(b)

	case models.InventorySourceDressedPart:
		if part == nil {
			return fmt.Errorf("%w: part type is required for dressed-part release", utils.ErrorInvalidInput)
		}
		p, err := tx.DressedBatchPart(batchId, *part)
		if err != nil {
			return err
		}
		p.PartsCount += quantity
		return tx.SaveDressedBatchPart(p)
	}
	return fmt.Errorf("%w: unknown inventory source %q", utils.ErrorInvalidInput, source)
}
