package workflow

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

func seedDressedBatch(t *testing.T, store *MemoryStore, whole int, parts map[models.PartType]int) *models.DressedBatch {
	t.Helper()
	b := &models.DressedBatch{
		FarmId:            "farm-1",
		BatchNumber:       "D-seed",
		InitialCount:      whole,
		ProcessedQuantity: whole,
		CurrentStatus:     models.DressedBatchStatusInStorage,
	}
	b.SetCurrentCount(whole)
	for part, count := range parts {
		b.Parts = append(b.Parts, models.DressedBatchPart{
			PartType:    part,
			PartsCount:  count,
			PartsWeight: decimal.NewFromInt(int64(count)),
		})
	}
	err := store.WithBatchLock(testCtx(), nil, func(tx StoreTx) error {
		return tx.CreateDressedBatch(b)
	})
	if err != nil {
		t.Fatalf("seed dressed batch: %v", err)
	}
	return b
}

func TestLedgerAvailabilityPerSource(t *testing.T) {
	e, store := newTestEngine()
	ctx := testCtx()
	live := mustCreateLiveBatch(t, e, ctx, "B", 30)
	dressed := seedDressedBatch(t, store, 20, map[models.PartType]int{models.PartTypeWing: 40})

	wing := models.PartTypeWing
	breast := models.PartTypeBreast
	cases := []struct {
		name    string
		batchId int
		source  models.InventorySource
		part    *models.PartType
		want    int
	}{
		{"live", live.ID, models.InventorySourceLive, nil, 30},
		{"dressed whole", dressed.ID, models.InventorySourceDressedWhole, nil, 20},
		{"dressed part", dressed.ID, models.InventorySourceDressedPart, &wing, 40},
		{"part never produced", dressed.ID, models.InventorySourceDressedPart, &breast, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.AvailableQuantity(ctx, tc.batchId, tc.source, tc.part)
			if err != nil {
				t.Fatalf("availability: %v", err)
			}
			if got != tc.want {
				t.Fatalf("available = %d, want %d", got, tc.want)
			}
		})
	}

	if _, err := e.AvailableQuantity(ctx, 9999, models.InventorySourceLive, nil); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("missing batch err = %v, want not found", err)
	}
	if _, err := e.AvailableQuantity(ctx, dressed.ID, models.InventorySourceDressedPart, nil); !errors.Is(err, utils.ErrorInvalidInput) {
		t.Fatalf("missing part type err = %v, want invalid input", err)
	}
}

func TestDressedWholeFallbackChain(t *testing.T) {
	e, store := newTestEngine()
	ctx := testCtx()

	// A legacy row with no current count falls back to processed quantity.
	legacy := &models.DressedBatch{
		FarmId:            "farm-1",
		BatchNumber:       "D-legacy",
		InitialCount:      50,
		ProcessedQuantity: 35,
		CurrentStatus:     models.DressedBatchStatusInStorage,
	}
	err := store.WithBatchLock(ctx, nil, func(tx StoreTx) error {
		return tx.CreateDressedBatch(legacy)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	available, err := e.AvailableQuantity(ctx, legacy.ID, models.InventorySourceDressedWhole, nil)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 35 {
		t.Fatalf("available = %d, want processed-quantity fallback 35", available)
	}

	// The first reservation materializes current count; the fallback is done.
	ledger := NewLedger()
	err = store.WithBatchLock(ctx, []int{legacy.ID}, func(tx StoreTx) error {
		remaining, err := ledger.Reserve(tx, legacy.ID, models.InventorySourceDressedWhole, nil, 5)
		if err != nil {
			return err
		}
		if remaining != 30 {
			t.Fatalf("remaining = %d, want 30", remaining)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	err = store.View(ctx, func(tx StoreTx) error {
		b, err := tx.DressedBatch(legacy.ID)
		if err != nil {
			return err
		}
		if b.CurrentCount == nil || *b.CurrentCount != 30 {
			t.Fatalf("current count = %v, want materialized 30", b.CurrentCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestLedgerReleaseCappedAtInitial(t *testing.T) {
	e, store := newTestEngine()
	ctx := testCtx()
	live := mustCreateLiveBatch(t, e, ctx, "B", 10)
	ledger := NewLedger()

	err := store.WithBatchLock(ctx, []int{live.ID}, func(tx StoreTx) error {
		if _, err := ledger.Reserve(tx, live.ID, models.InventorySourceLive, nil, 4); err != nil {
			return err
		}
		// Releasing more than was taken cannot push past the initial count.
		return ledger.Release(tx, live.ID, models.InventorySourceLive, nil, 100)
	})
	if err != nil {
		t.Fatalf("reserve/release: %v", err)
	}

	available, err := e.AvailableQuantity(ctx, live.ID, models.InventorySourceLive, nil)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 10 {
		t.Fatalf("available = %d, want capped at 10", available)
	}
}

func TestReserveReleasePairsRestoreAvailability(t *testing.T) {
	e, store := newTestEngine()
	ctx := testCtx()
	live := mustCreateLiveBatch(t, e, ctx, "B", 10)
	ledger := NewLedger()

	err := store.WithBatchLock(ctx, []int{live.ID}, func(tx StoreTx) error {
		for _, q := range []int{3, 4, 2} {
			if _, err := ledger.Reserve(tx, live.ID, models.InventorySourceLive, nil, q); err != nil {
				return err
			}
		}
		for _, q := range []int{2, 4, 3} {
			if err := ledger.Release(tx, live.ID, models.InventorySourceLive, nil, q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	available, err := e.AvailableQuantity(ctx, live.ID, models.InventorySourceLive, nil)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 10 {
		t.Fatalf("available = %d after paired reserve/release, want 10", available)
	}
}

func TestLedgerRejectsNonPositiveQuantities(t *testing.T) {
	e, store := newTestEngine()
	ctx := testCtx()
	live := mustCreateLiveBatch(t, e, ctx, "B", 10)
	ledger := NewLedger()

	err := store.WithBatchLock(ctx, []int{live.ID}, func(tx StoreTx) error {
		if _, err := ledger.Reserve(tx, live.ID, models.InventorySourceLive, nil, 0); !errors.Is(err, utils.ErrorInvalidInput) {
			t.Fatalf("zero reserve err = %v, want invalid input", err)
		}
		if _, err := ledger.Reserve(tx, live.ID, models.InventorySourceLive, nil, -3); !errors.Is(err, utils.ErrorInvalidInput) {
			t.Fatalf("negative reserve err = %v, want invalid input", err)
		}
		if err := ledger.Release(tx, live.ID, models.InventorySourceLive, nil, 0); !errors.Is(err, utils.ErrorInvalidInput) {
			t.Fatalf("zero release err = %v, want invalid input", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	e, _ := newTestEngine()
	ctx := testCtx()
	src := mustCreateLiveBatch(t, e, ctx, "B", 10)

	// Two orders race for the same ten birds. Exactly one wins; the count
	// never goes negative.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.CommitOrder(ctx, &models.NewOrder{
				CustomerName:    "racer",
				OrderDate:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
				QuantityCount:   10,
				UnitPrice:       decimal.NewFromInt(500),
				CalculationMode: models.CalculationModeCountTimesPrice,
				InventorySource: models.InventorySourceLive,
				SourceBatchId:   src.ID,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, utils.ErrorInsufficientInventory):
			lost++
		default:
			t.Fatalf("unexpected race error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one of each", won, lost)
	}

	available, err := e.AvailableQuantity(ctx, src.ID, models.InventorySourceLive, nil)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 0 {
		t.Fatalf("available = %d after race, want 0", available)
	}
}
