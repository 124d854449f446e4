package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"field-sync-service/internal/config"
	"field-sync-service/internal/logger"
)

// Scheduler triggers a drain on a cron schedule, as a fallback for missed
// reconnect events.
type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerSync)
	if err != nil {
		return err
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running job to return.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	if s.manager.Syncing() {
		logger.Log.Info("Sync already running, skipping scheduled run")
		return
	}
	if s.manager.State().PendingCount == 0 {
		logger.Log.Debug("Nothing pending, skipping scheduled run")
		return
	}

	logger.Log.Info("Triggering scheduled sync")

	_, err := s.manager.TriggerSync(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrOffline), errors.Is(err, ErrSyncInProgress):
		logger.Log.Info("Scheduled sync skipped", zap.Error(err))
	default:
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	}
}
