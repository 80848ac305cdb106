package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"bitbucket.org/mmdatafocus/poultry_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func TestExpirySweepMarksExpiredBatches(t *testing.T) {
	store := workflow.NewMemoryStore()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine := workflow.NewEngine(store, workflow.NewLedger(), workflow.NewGraph(), logger)

	ctx := utils.SetFarmIdInContext(context.Background(), "farm-1")
	ctx = utils.SetUserNameInContext(ctx, "tester")

	src, err := engine.CreateLiveBatch(ctx, &models.NewLiveBatch{
		BatchNumber:   "B-1",
		InitialCount:  50,
		AverageWeight: decimal.NewFromFloat(1.8),
		AcquiredDate:  time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create live batch: %v", err)
	}
	past := time.Now().Add(-24 * time.Hour)
	run, err := engine.ProcessBatch(ctx, &workflow.ProcessBatchInput{
		SourceBatchId:  src.ID,
		Quantity:       30,
		NewBatchNumber: "D-1",
		ExpiryDate:     &past,
	})
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}

	s := New(engine, logger)
	// Without Redis the daily marker reads as absent, so the sweep runs.
	s.runExpirySweep()

	err = store.View(ctx, func(tx workflow.StoreTx) error {
		b, err := tx.DressedBatch(run.Dressed.ID)
		if err != nil {
			return err
		}
		if b.CurrentStatus != models.DressedBatchStatusExpired {
			t.Fatalf("status = %s, want Expired", b.CurrentStatus)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
