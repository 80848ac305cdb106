package scheduler

import (
	"context"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/config"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"bitbucket.org/mmdatafocus/poultry_backend/workflow"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const moduleName = "scheduler"

// defaultExpirySchedule runs the dressed-batch expiry sweep nightly at 02:00,
// after the day's orders are in and before the morning stock check.
const defaultExpirySchedule = "0 2 * * *"

// Scheduler owns the periodic jobs. Only one exists today: sweeping dressed
// batches past their expiry date into Expired.
type Scheduler struct {
	cron   *cron.Cron
	engine *workflow.Engine
	logger *logrus.Logger
}

func New(engine *workflow.Engine, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
		logger: logger,
	}
}

func (s *Scheduler) Start() error {
	schedule := os.Getenv("EXPIRY_SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = defaultExpirySchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.runExpirySweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and returns once any running job has finished.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runExpirySweep() {
	funcName := "runExpirySweep"
	ctx := utils.SetUserNameInContext(context.Background(), "scheduler")

	start := time.Now()
	// One sweep per day across instances. The marker is best effort: without
	// Redis every instance sweeps, and the sweep itself is idempotent.
	markerKey := "expiry_sweep:" + start.Format("2006-01-02")
	if _, ran, err := config.GetRedisValue(markerKey); err == nil && ran {
		return
	}
	_ = config.SetRedisValue(markerKey, "running", 24*time.Hour)

	expired, err := s.engine.ExpireDressedBatches(ctx, start)
	if err != nil {
		config.LogError(s.logger, moduleName, funcName, "expiry sweep", nil, err)
		// Clear the marker so a later run retries today's sweep.
		_ = config.RemoveRedisKey(markerKey)
		return
	}
	if expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  expired,
			"duration": time.Since(start).String(),
		}).Info("dressed batch expiry sweep finished")
	}
}
