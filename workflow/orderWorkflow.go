package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/poultry_backend/config"
	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
)

// reservedUnits is what an order holds against its source batch. Size-priced
// orders with no count hold nothing; their quantity lives in UnitSize.
func reservedUnits(o *models.Order) int {
	if o.SourceBatchId == 0 {
		return 0
	}
	return o.QuantityCount
}

// ValidateOrder runs the dry-run check a form uses before submitting: field
// validation plus availability against the referenced batch. Nothing is
// reserved.
func (e *Engine) ValidateOrder(ctx context.Context, input *models.NewOrder) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if input.SourceBatchId == 0 || input.QuantityCount == 0 {
		return nil
	}
	return e.store.View(ctx, func(tx StoreTx) error {
		available, err := e.ledger.Available(tx, input.SourceBatchId, input.InventorySource, input.PartType)
		if err != nil {
			return err
		}
		if input.QuantityCount > available {
			return &utils.InsufficientInventoryError{
				BatchId:   input.SourceBatchId,
				Source:    string(input.InventorySource),
				Requested: input.QuantityCount,
				Available: available,
			}
		}
		return nil
	})
}

// CommitOrder validates, reserves inventory, computes the cached total,
// balance, and status, and persists the order in one transaction.
func (e *Engine) CommitOrder(ctx context.Context, input *models.NewOrder) (*models.Order, error) {
	funcName := "CommitOrder"
	farmId, err := requireFarmId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	source := input.InventorySource
	if source == "" {
		source = models.InventorySourceLive
	}
	order := &models.Order{
		FarmId:          farmId,
		CustomerName:    input.CustomerName,
		OrderDate:       input.OrderDate,
		QuantityCount:   input.QuantityCount,
		UnitSize:        input.UnitSize,
		UnitPrice:       input.UnitPrice,
		AmountPaid:      input.AmountPaid,
		CalculationMode: input.CalculationMode,
		InventorySource: source,
		PartType:        input.PartType,
		SourceBatchId:   input.SourceBatchId,
	}

	var lockIds []int
	if order.SourceBatchId != 0 {
		lockIds = []int{order.SourceBatchId}
	}
	err = e.mutate(ctx, lockIds, func(tx StoreTx) error {
		if units := reservedUnits(order); units > 0 {
			if _, err := e.ledger.Reserve(tx, order.SourceBatchId, order.InventorySource, order.PartType, units); err != nil {
				return err
			}
		}
		order.Recalculate()
		if err := tx.CreateOrder(order); err != nil {
			return err
		}
		return e.audit(ctx, tx, "create", "order", order.ID, map[string]models.FieldChange{
			"customer_name":  {Old: nil, New: order.CustomerName},
			"order_total":    {Old: nil, New: order.OrderTotal},
			"current_status": {Old: nil, New: order.CurrentStatus},
		})
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "commit order", input, err)
		return nil, err
	}
	return order, nil
}

// UpdateOrder applies a partial edit. Inventory is adjusted by the count
// delta, the cached money fields are recomputed under the order's own mode,
// and the status override policy runs: a payment-affecting edit drops any
// prior override and re-derives, an explicit StatusOverride wins afterwards.
func (e *Engine) UpdateOrder(ctx context.Context, orderId int, input *models.UpdateOrderInput) (*models.Order, []string, error) {
	funcName := "UpdateOrder"
	if _, err := requireFarmId(ctx); err != nil {
		return nil, nil, err
	}
	if input.StatusOverride != nil && !input.StatusOverride.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown status %q", utils.ErrorInvalidInput, *input.StatusOverride)
	}

	// The source batch id never changes on edit, so it can be read outside
	// the lock to know what to lock.
	var lockIds []int
	err := e.store.View(ctx, func(tx StoreTx) error {
		o, err := tx.Order(orderId)
		if err != nil {
			return err
		}
		if o.SourceBatchId != 0 {
			lockIds = []int{o.SourceBatchId}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var order *models.Order
	var warnings []string
	err = e.mutate(ctx, lockIds, func(tx StoreTx) error {
		warnings = nil
		o, err := tx.Order(orderId)
		if err != nil {
			return err
		}
		if o.CurrentStatus == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order %d is cancelled", utils.ErrorInvalidInput, orderId)
		}

		changes := map[string]models.FieldChange{}
		if input.CustomerName != nil && *input.CustomerName != o.CustomerName {
			changes["customer_name"] = models.FieldChange{Old: o.CustomerName, New: *input.CustomerName}
			o.CustomerName = *input.CustomerName
		}
		if input.OrderDate != nil && !input.OrderDate.Equal(o.OrderDate) {
			changes["order_date"] = models.FieldChange{Old: o.OrderDate, New: *input.OrderDate}
			o.OrderDate = *input.OrderDate
		}
		if input.QuantityCount != nil && *input.QuantityCount != o.QuantityCount {
			if *input.QuantityCount < 0 {
				return fmt.Errorf("%w: quantity count cannot be negative", utils.ErrorInvalidInput)
			}
			oldCount := o.QuantityCount
			if o.SourceBatchId != 0 {
				delta := *input.QuantityCount - oldCount
				if delta > 0 {
					if _, err := e.ledger.Reserve(tx, o.SourceBatchId, o.InventorySource, o.PartType, delta); err != nil {
						return err
					}
				} else {
					if err := e.ledger.Release(tx, o.SourceBatchId, o.InventorySource, o.PartType, -delta); err != nil {
						return err
					}
				}
			}
			changes["quantity_count"] = models.FieldChange{Old: oldCount, New: *input.QuantityCount}
			o.QuantityCount = *input.QuantityCount
		}
		if input.UnitSize != nil && !input.UnitSize.Equal(o.UnitSize) {
			if input.UnitSize.IsNegative() {
				return fmt.Errorf("%w: unit size cannot be negative", utils.ErrorInvalidInput)
			}
			changes["unit_size"] = models.FieldChange{Old: o.UnitSize, New: *input.UnitSize}
			o.UnitSize = *input.UnitSize
		}
		if input.UnitPrice != nil && !input.UnitPrice.Equal(o.UnitPrice) {
			if !input.UnitPrice.IsPositive() {
				return fmt.Errorf("%w: unit price must be greater than zero", utils.ErrorInvalidInput)
			}
			changes["unit_price"] = models.FieldChange{Old: o.UnitPrice, New: *input.UnitPrice}
			o.UnitPrice = *input.UnitPrice
		}
		if input.AmountPaid != nil && !input.AmountPaid.Equal(o.AmountPaid) {
			if input.AmountPaid.IsNegative() {
				return fmt.Errorf("%w: amount paid cannot be negative", utils.ErrorInvalidInput)
			}
			changes["amount_paid"] = models.FieldChange{Old: o.AmountPaid, New: *input.AmountPaid}
			o.AmountPaid = *input.AmountPaid
		}
		if input.CalculationMode != nil && *input.CalculationMode != o.CalculationMode {
			if !input.CalculationMode.Valid() {
				return fmt.Errorf("%w: unknown calculation mode %q", utils.ErrorInvalidInput, *input.CalculationMode)
			}
			changes["calculation_mode"] = models.FieldChange{Old: o.CalculationMode, New: *input.CalculationMode}
			o.CalculationMode = *input.CalculationMode
		}

		oldStatus := o.CurrentStatus
		if input.PaymentAffecting() {
			// The money changed underneath any manual status, so the
			// derived status takes over again.
			o.StatusOverridden = false
		}
		o.Recalculate()
		if input.StatusOverride != nil {
			o.CurrentStatus = *input.StatusOverride
			// A status outside the derived family is always an override;
			// inside it, only a disagreement with the payment state is.
			o.StatusOverridden = !input.StatusOverride.Derived() || *input.StatusOverride != o.DerivedStatus()
		}
		if o.CurrentStatus != oldStatus {
			changes["current_status"] = models.FieldChange{Old: oldStatus, New: o.CurrentStatus}
		}
		if o.StatusOverridden {
			warnings = append(warnings,
				fmt.Sprintf("order %d status %s is overridden; payment state derives %s", o.ID, o.CurrentStatus, o.DerivedStatus()))
		}

		if err := tx.SaveOrder(o); err != nil {
			return err
		}
		order = o
		if len(changes) == 0 {
			return nil
		}
		return e.audit(ctx, tx, "update", "order", o.ID, changes)
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "update order", map[string]interface{}{"order_id": orderId}, err)
		return nil, nil, err
	}
	return order, warnings, nil
}

// CancelOrder releases the order's reserved inventory and marks it
// cancelled. Cancelling twice is an error, not a no-op; the second caller is
// working from a stale view.
func (e *Engine) CancelOrder(ctx context.Context, orderId int) (*models.Order, error) {
	funcName := "CancelOrder"
	if _, err := requireFarmId(ctx); err != nil {
		return nil, err
	}

	var lockIds []int
	err := e.store.View(ctx, func(tx StoreTx) error {
		o, err := tx.Order(orderId)
		if err != nil {
			return err
		}
		if o.SourceBatchId != 0 {
			lockIds = []int{o.SourceBatchId}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = e.mutate(ctx, lockIds, func(tx StoreTx) error {
		o, err := tx.Order(orderId)
		if err != nil {
			return err
		}
		if o.CurrentStatus == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order %d is already cancelled", utils.ErrorInvalidInput, orderId)
		}
		if units := reservedUnits(o); units > 0 {
			if err := e.ledger.Release(tx, o.SourceBatchId, o.InventorySource, o.PartType, units); err != nil {
				return err
			}
		}
		oldStatus := o.CurrentStatus
		o.CurrentStatus = models.OrderStatusCancelled
		o.StatusOverridden = true
		if err := tx.SaveOrder(o); err != nil {
			return err
		}
		order = o
		return e.audit(ctx, tx, "cancel", "order", o.ID, map[string]models.FieldChange{
			"current_status": {Old: oldStatus, New: o.CurrentStatus},
		})
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "cancel order", map[string]interface{}{"order_id": orderId}, err)
		return nil, err
	}
	return order, nil
}

// BatchUpdateOrders applies one status or payment change across many orders
// in a single transaction. Each order recomputes under its own calculation
// mode; there is no shared formula across the batch.
func (e *Engine) BatchUpdateOrders(ctx context.Context, input *models.BatchUpdateOrdersInput) ([]*models.Order, []string, error) {
	funcName := "BatchUpdateOrders"
	if _, err := requireFarmId(ctx); err != nil {
		return nil, nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, nil, err
	}

	var orders []*models.Order
	var warnings []string
	err := e.mutate(ctx, nil, func(tx StoreTx) error {
		orders = nil
		warnings = nil
		for _, id := range input.OrderIds {
			o, err := tx.Order(id)
			if err != nil {
				return fmt.Errorf("order %d: %w", id, err)
			}
			if o.CurrentStatus == models.OrderStatusCancelled {
				return fmt.Errorf("%w: order %d is cancelled", utils.ErrorInvalidInput, id)
			}

			changes := map[string]models.FieldChange{}
			if input.AmountPaid != nil && !input.AmountPaid.Equal(o.AmountPaid) {
				changes["amount_paid"] = models.FieldChange{Old: o.AmountPaid, New: *input.AmountPaid}
				o.AmountPaid = *input.AmountPaid
				o.StatusOverridden = false
			}
			oldStatus := o.CurrentStatus
			o.Recalculate()
			if input.Status != nil {
				o.CurrentStatus = *input.Status
				o.StatusOverridden = !input.Status.Derived() || *input.Status != o.DerivedStatus()
			}
			if o.CurrentStatus != oldStatus {
				changes["current_status"] = models.FieldChange{Old: oldStatus, New: o.CurrentStatus}
			}
			if o.StatusOverridden {
				warnings = append(warnings,
					fmt.Sprintf("order %d status %s is overridden; payment state derives %s", o.ID, o.CurrentStatus, o.DerivedStatus()))
			}

			if err := tx.SaveOrder(o); err != nil {
				return err
			}
			if len(changes) > 0 {
				if err := e.audit(ctx, tx, "update", "order", o.ID, changes); err != nil {
					return err
				}
			}
			orders = append(orders, o)
		}
		return nil
	})
	if err != nil {
		config.LogError(e.logger, moduleName, funcName, "batch update orders", input, err)
		return nil, nil, err
	}
	return orders, warnings, nil
}
