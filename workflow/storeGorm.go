package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlErrDuplicateEntry = 1062

// GormStore is the production Store. Per-batch serialization comes from MySQL
// advisory locks held on the transaction's connection; row-version
// conditional updates catch anything that slips past them (a writer on a
// different code path, or a batch id the caller forgot to lock).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) View(ctx context.Context, fn func(tx StoreTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx})
	})
}

func (s *GormStore) WithBatchLock(ctx context.Context, batchIds []int, fn func(tx StoreTx) error) error {
	ids := utils.UniqueSlice(batchIds)
	sort.Ints(ids) // fixed lock order, same as the memory store

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := AcquireBatchPostingLock(tx, id); err != nil {
				return err
			}
			defer ReleaseBatchPostingLock(tx, id)
		}
		return fn(&gormTx{tx: tx})
	})
}

type gormTx struct {
	tx *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}

func (t *gormTx) LiveBatch(id int) (*models.LiveBatch, error) {
	var b models.LiveBatch
	if err := t.tx.First(&b, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (t *gormTx) DressedBatch(id int) (*models.DressedBatch, error) {
	var b models.DressedBatch
	if err := t.tx.First(&b, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (t *gormTx) DressedBatchPart(dressedBatchId int, part models.PartType) (*models.DressedBatchPart, error) {
	var p models.DressedBatchPart
	err := t.tx.Where("dressed_batch_id = ? AND part_type = ?", dressedBatchId, part).First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *gormTx) Order(id int) (*models.Order, error) {
	var o models.Order
	if err := t.tx.First(&o, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (t *gormTx) CreateLiveBatch(b *models.LiveBatch) error {
	return t.tx.Create(b).Error
}

func (t *gormTx) CreateDressedBatch(b *models.DressedBatch) error {
	return t.tx.Create(b).Error
}

func (t *gormTx) CreateOrder(o *models.Order) error {
	return t.tx.Create(o).Error
}

func (t *gormTx) CreateRelationship(r *models.BatchRelationship) error {
	err := t.tx.Create(r).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		// Unique index on target_batch_id: the dressed batch already has a
		// processed-from edge.
		return fmt.Errorf("%w: dressed batch %d already has a processed-from edge", utils.ErrorLineageViolation, r.TargetBatchId)
	}
	return err
}

// saveVersioned applies a conditional update and bumps the in-memory Version
// on success so a later save within the same workflow stays consistent.
func (t *gormTx) saveVersioned(model interface{}, id int, version int, updates map[string]interface{}) error {
	updates["version"] = version + 1
	res := t.tx.Model(model).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorConcurrencyConflict
	}
	return nil
}

func (t *gormTx) SaveLiveBatch(b *models.LiveBatch) error {
	err := t.saveVersioned(&models.LiveBatch{}, b.ID, b.Version, map[string]interface{}{
		"current_count":   b.CurrentCount,
		"processed_count": b.ProcessedCount,
		"average_weight":  b.AverageWeight,
		"current_status":  b.CurrentStatus,
	})
	if err != nil {
		return err
	}
	b.Version++
	return nil
}

func (t *gormTx) SaveDressedBatch(b *models.DressedBatch) error {
	err := t.saveVersioned(&models.DressedBatch{}, b.ID, b.Version, map[string]interface{}{
		"current_count":  b.CurrentCount,
		"average_weight": b.AverageWeight,
		"current_status": b.CurrentStatus,
		"expiry_date":    b.ExpiryDate,
	})
	if err != nil {
		return err
	}
	b.Version++
	return nil
}

func (t *gormTx) SaveDressedBatchPart(p *models.DressedBatchPart) error {
	err := t.saveVersioned(&models.DressedBatchPart{}, p.ID, p.Version, map[string]interface{}{
		"parts_count":  p.PartsCount,
		"parts_weight": p.PartsWeight,
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

func (t *gormTx) SaveOrder(o *models.Order) error {
	err := t.saveVersioned(&models.Order{}, o.ID, o.Version, map[string]interface{}{
		"customer_name":     o.CustomerName,
		"order_date":        o.OrderDate,
		"quantity_count":    o.QuantityCount,
		"unit_size":         o.UnitSize,
		"unit_price":        o.UnitPrice,
		"amount_paid":       o.AmountPaid,
		"calculation_mode":  o.CalculationMode,
		"order_total":       o.OrderTotal,
		"balance":           o.Balance,
		"current_status":    o.CurrentStatus,
		"status_overridden": o.StatusOverridden,
	})
	if err != nil {
		return err
	}
	o.Version++
	return nil
}

func (t *gormTx) OutgoingQuantity(sourceBatchId int) (int, error) {
	var total int
	err := t.tx.Model(&models.BatchRelationship{}).
		Where("source_batch_id = ?", sourceBatchId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (t *gormTx) InboundEdge(targetBatchId int) (*models.BatchRelationship, error) {
	var r models.BatchRelationship
	err := t.tx.Where("target_batch_id = ?", targetBatchId).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *gormTx) ExpiredDressedBatches(asOf time.Time) ([]*models.DressedBatch, error) {
	var out []*models.DressedBatch
	err := t.tx.
		Where("current_status = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", models.DressedBatchStatusInStorage, asOf).
		Order("id").
		Find(&out).Error
	return out, err
}

func (t *gormTx) AppendHistory(h *models.History) error {
	return t.tx.Create(h).Error
}
