package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
)

// Store is the engine's only data port. Two implementations exist: the GORM
// store used in production and an in-memory store used by the engine tests
// and by callers that feed the engine plain records.
//
// Contract for both:
//   - WithBatchLock serializes fn against every other mutation touching any
//     of the given batch ids (check-then-act over a batch's counts must never
//     interleave), and applies fn's writes atomically: if fn returns an
//     error, none of its writes are observable.
//   - View runs fn against a consistent read snapshot; reads may run
//     concurrently with each other.
//   - Lookups return utils.ErrorRecordNotFound when the row does not exist.
//   - Save operations are conditional on the record's Version and return
//     utils.ErrorConcurrencyConflict when the row changed underneath; the
//     engine retries a bounded number of times.
type Store interface {
	View(ctx context.Context, fn func(tx StoreTx) error) error
	WithBatchLock(ctx context.Context, batchIds []int, fn func(tx StoreTx) error) error
}

type StoreTx interface {
	LiveBatch(id int) (*models.LiveBatch, error)
	DressedBatch(id int) (*models.DressedBatch, error)
	DressedBatchPart(dressedBatchId int, part models.PartType) (*models.DressedBatchPart, error)
	Order(id int) (*models.Order, error)

	CreateLiveBatch(b *models.LiveBatch) error
	CreateDressedBatch(b *models.DressedBatch) error
	CreateOrder(o *models.Order) error
	CreateRelationship(r *models.BatchRelationship) error

	SaveLiveBatch(b *models.LiveBatch) error
	SaveDressedBatch(b *models.DressedBatch) error
	SaveDressedBatchPart(p *models.DressedBatchPart) error
	SaveOrder(o *models.Order) error

	// OutgoingQuantity sums edge quantities leaving a live batch.
	OutgoingQuantity(sourceBatchId int) (int, error)
	// InboundEdge returns the single processed-from edge of a dressed batch,
	// or nil when the batch has no recorded lineage.
	InboundEdge(targetBatchId int) (*models.BatchRelationship, error)

	// ExpiredDressedBatches lists InStorage batches whose expiry date is at
	// or before asOf.
	ExpiredDressedBatches(asOf time.Time) ([]*models.DressedBatch, error)

	AppendHistory(h *models.History) error
}
