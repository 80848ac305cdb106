package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

func orderDate() time.Time {
	return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
}

func TestCommitOrderSizePriced(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()

	// 12.5 viss at 400 per viss: total 5000, 3000 paid leaves 2000.
	order, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "Daw Mya",
		OrderDate:       orderDate(),
		UnitSize:        decimal.NewFromFloat(12.5),
		UnitPrice:       decimal.NewFromInt(400),
		AmountPaid:      decimal.NewFromInt(3000),
		CalculationMode: models.CalculationModeSizeTimesPrice,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !order.OrderTotal.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("total = %s, want 5000", order.OrderTotal)
	}
	if !order.Balance.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("balance = %s, want 2000", order.Balance)
	}
	if order.CurrentStatus != models.OrderStatusPartial {
		t.Fatalf("status = %s, want Partial", order.CurrentStatus)
	}
}

func TestCommitOrderReservesInventory(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()
	src := mustCreateLiveBatch(t, e, ctx, "B", 50)

	order, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "U Hla",
		OrderDate:       orderDate(),
		QuantityCount:   10,
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: models.CalculationModeCountTimesPrice,
		InventorySource: models.InventorySourceLive,
		SourceBatchId:   src.ID,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !order.OrderTotal.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("total = %s, want 5000", order.OrderTotal)
	}

	available, err := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 40 {
		t.Fatalf("available = %d after reserve, want 40", available)
	}

	// A second order for more than what is left fails atomically.
	_, err = e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "U Hla",
		OrderDate:       orderDate(),
		QuantityCount:   41,
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: models.CalculationModeCountTimesPrice,
		InventorySource: models.InventorySourceLive,
		SourceBatchId:   src.ID,
	})
	var insufficient *utils.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientInventoryError", err)
	}
	if insufficient.Available != 40 {
		t.Fatalf("available in error = %d, want 40", insufficient.Available)
	}
}

func TestValidateOrderDryRun(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()
	src := mustCreateLiveBatch(t, e, ctx, "B", 5)

	input := &models.NewOrder{
		CustomerName:    "Daw Mya",
		OrderDate:       orderDate(),
		QuantityCount:   9,
		UnitPrice:       decimal.NewFromInt(100),
		CalculationMode: models.CalculationModeCountTimesPrice,
		InventorySource: models.InventorySourceLive,
		SourceBatchId:   src.ID,
	}
	if err := e.ValidateOrder(ctx, input); !errors.Is(err, utils.ErrorInsufficientInventory) {
		t.Fatalf("err = %v, want insufficient inventory", err)
	}

	// The dry run reserved nothing.
	available, err := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 5 {
		t.Fatalf("available = %d after dry run, want 5", available)
	}

	input.QuantityCount = 5
	if err := e.ValidateOrder(ctx, input); err != nil {
		t.Fatalf("valid input: %v", err)
	}
}

func TestUpdateOrderAdjustsReservation(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()
	src := mustCreateLiveBatch(t, e, ctx, "B", 50)

	order, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "U Hla",
		OrderDate:       orderDate(),
		QuantityCount:   10,
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: models.CalculationModeCountTimesPrice,
		InventorySource: models.InventorySourceLive,
		SourceBatchId:   src.ID,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Shrinking the order releases the difference.
	four := 4
	updated, _, err := e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{QuantityCount: &four})
	if err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if !updated.OrderTotal.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("total = %s after shrink, want 2000", updated.OrderTotal)
	}
	if available, _ := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil); available != 46 {
		t.Fatalf("available = %d after shrink, want 46", available)
	}

	// Growing reserves the delta, and only the delta.
	twenty := 20
	if _, _, err := e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{QuantityCount: &twenty}); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if available, _ := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil); available != 30 {
		t.Fatalf("available = %d after grow, want 30", available)
	}

	// Growing past the batch fails and leaves the reservation as it was.
	hundred := 100
	if _, _, err := e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{QuantityCount: &hundred}); !errors.Is(err, utils.ErrorInsufficientInventory) {
		t.Fatalf("over-grow err = %v, want insufficient inventory", err)
	}
	if available, _ := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil); available != 30 {
		t.Fatalf("available = %d after failed grow, want 30", available)
	}
}

func TestUpdateOrderStatusOverridePolicy(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()

	order, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "Daw Mya",
		OrderDate:       orderDate(),
		QuantityCount:   10,
		UnitPrice:       decimal.NewFromInt(500),
		AmountPaid:      decimal.NewFromInt(1000),
		CalculationMode: models.CalculationModeCountTimesPrice,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if order.CurrentStatus != models.OrderStatusPartial {
		t.Fatalf("status = %s, want Partial", order.CurrentStatus)
	}

	// An explicit override sticks and is flagged.
	completed := models.OrderStatusCompleted
	updated, warnings, err := e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{StatusOverride: &completed})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if updated.CurrentStatus != models.OrderStatusCompleted || !updated.StatusOverridden {
		t.Fatalf("status = %s overridden=%v, want Completed true", updated.CurrentStatus, updated.StatusOverridden)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want the override disagreement", warnings)
	}

	// A non-payment edit keeps the override in place.
	name := "Daw Mya Mya"
	updated, _, err = e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{CustomerName: &name})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.CurrentStatus != models.OrderStatusCompleted {
		t.Fatalf("status = %s after rename, want Completed preserved", updated.CurrentStatus)
	}

	// A payment-affecting edit drops the override and re-derives.
	paid := decimal.NewFromInt(5000)
	updated, warnings, err = e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{AmountPaid: &paid})
	if err != nil {
		t.Fatalf("pay off: %v", err)
	}
	if updated.CurrentStatus != models.OrderStatusPaid || updated.StatusOverridden {
		t.Fatalf("status = %s overridden=%v, want Paid false", updated.CurrentStatus, updated.StatusOverridden)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v after re-derive, want none", warnings)
	}

	// Overriding to what payment state already derives is not an override.
	paidStatus := models.OrderStatusPaid
	updated, warnings, err = e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{StatusOverride: &paidStatus})
	if err != nil {
		t.Fatalf("agreeing override: %v", err)
	}
	if updated.StatusOverridden {
		t.Fatalf("agreeing override left the flag set")
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v for agreeing override, want none", warnings)
	}
}

func TestCancelOrderReleasesInventory(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()
	src := mustCreateLiveBatch(t, e, ctx, "B", 50)

	order, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "U Hla",
		OrderDate:       orderDate(),
		QuantityCount:   10,
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: models.CalculationModeCountTimesPrice,
		InventorySource: models.InventorySourceLive,
		SourceBatchId:   src.ID,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	cancelled, err := e.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CurrentStatus != models.OrderStatusCancelled {
		t.Fatalf("status = %s, want Cancelled", cancelled.CurrentStatus)
	}
	if available, _ := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil); available != 50 {
		t.Fatalf("available = %d after cancel, want 50", available)
	}

	if _, err := e.CancelOrder(ctx, order.ID); !errors.Is(err, utils.ErrorInvalidInput) {
		t.Fatalf("double cancel err = %v, want invalid input", err)
	}
	if _, _, err := e.UpdateOrder(ctx, order.ID, &models.UpdateOrderInput{}); !errors.Is(err, utils.ErrorInvalidInput) {
		t.Fatalf("edit cancelled err = %v, want invalid input", err)
	}
}

func TestBatchUpdateOrdersEachModeRecomputes(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()

	countPriced, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "A",
		OrderDate:       orderDate(),
		QuantityCount:   10,
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: models.CalculationModeCountTimesPrice,
	})
	if err != nil {
		t.Fatalf("commit count-priced: %v", err)
	}
	sizePriced, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "B",
		OrderDate:       orderDate(),
		UnitSize:        decimal.NewFromFloat(12.5),
		UnitPrice:       decimal.NewFromInt(400),
		CalculationMode: models.CalculationModeSizeTimesPrice,
	})
	if err != nil {
		t.Fatalf("commit size-priced: %v", err)
	}

	paid := decimal.NewFromInt(5000)
	orders, warnings, err := e.BatchUpdateOrders(ctx, &models.BatchUpdateOrdersInput{
		OrderIds:   []int{countPriced.ID, sizePriced.ID},
		AmountPaid: &paid,
	})
	if err != nil {
		t.Fatalf("batch update: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	// Both totals are 5000 under their own formulas, so both come out Paid.
	for _, o := range orders {
		if o.CurrentStatus != models.OrderStatusPaid {
			t.Fatalf("order %d status = %s, want Paid", o.ID, o.CurrentStatus)
		}
		if !o.Balance.IsZero() {
			t.Fatalf("order %d balance = %s, want 0", o.ID, o.Balance)
		}
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}

	// A batch status set that disagrees with payment state is an override on
	// every order it touches.
	pending := models.OrderStatusPending
	orders, warnings, err = e.BatchUpdateOrders(ctx, &models.BatchUpdateOrdersInput{
		OrderIds: []int{countPriced.ID, sizePriced.ID},
		Status:   &pending,
	})
	if err != nil {
		t.Fatalf("batch status: %v", err)
	}
	for _, o := range orders {
		if o.CurrentStatus != models.OrderStatusPending || !o.StatusOverridden {
			t.Fatalf("order %d = %s overridden=%v, want Pending true", o.ID, o.CurrentStatus, o.StatusOverridden)
		}
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %d, want 2", len(warnings))
	}
}

func TestBatchUpdateOrdersMissingOrderAborts(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()

	order, err := e.CommitOrder(ctx, &models.NewOrder{
		CustomerName:    "A",
		OrderDate:       orderDate(),
		QuantityCount:   10,
		UnitPrice:       decimal.NewFromInt(500),
		CalculationMode: models.CalculationModeCountTimesPrice,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	paid := decimal.NewFromInt(5000)
	_, _, err = e.BatchUpdateOrders(ctx, &models.BatchUpdateOrdersInput{
		OrderIds:   []int{order.ID, 9999},
		AmountPaid: &paid,
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	// The whole batch rolled back, including the order that existed.
	var current *models.Order
	err = e.store.View(ctx, func(tx StoreTx) error {
		var err error
		current, err = tx.Order(order.ID)
		return err
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !current.AmountPaid.IsZero() {
		t.Fatalf("amount paid = %s after aborted batch, want 0", current.AmountPaid)
	}
}
