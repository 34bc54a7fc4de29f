package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	purgeJobName = "purge-expired-refresh-tokens"
	purgeTimeout = time.Minute
)

// ExpiredTokenPurger deletes refresh records whose expiry passed.
type ExpiredTokenPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// MaintenanceConfig tunes the background clean up.
type MaintenanceConfig struct {
	// Schedule is a five field cron expression.
	Schedule string
	// Retention keeps expired records around for inspection before deletion.
	Retention time.Duration
}

// MaintenanceService runs periodic store clean up. Without a cleaner,
// expired refresh records stay in Postgres forever.
type MaintenanceService struct {
	scheduler gocron.Scheduler
	purger    ExpiredTokenPurger
	config    MaintenanceConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewMaintenanceService registers the purge job on a new scheduler. The
// scheduler is started with Start.
func NewMaintenanceService(purger ExpiredTokenPurger, config MaintenanceConfig, logger *zap.Logger) (*MaintenanceService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Schedule == "" {
		config.Schedule = "0 4 * * *"
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	svc := &MaintenanceService{scheduler: scheduler, purger: purger, config: config, now: time.Now, logger: logger}
	if _, err := scheduler.NewJob(
		gocron.CronJob(config.Schedule, false),
		gocron.NewTask(svc.purgeOnce),
		gocron.WithName(purgeJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return svc, nil
}

// Start begins running scheduled jobs.
func (s *MaintenanceService) Start() {
	s.scheduler.Start()
}

// Stop waits for running jobs and stops the scheduler.
func (s *MaintenanceService) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Warn("maintenance scheduler shutdown failed", zap.Error(err))
	}
}

func (s *MaintenanceService) purgeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	cutoff := s.now().UTC().Add(-s.config.Retention)
	count, err := s.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("purge expired refresh tokens failed", zap.Error(err))
		return
	}
	s.logger.Info("purged expired refresh tokens", zap.Int64("count", count), zap.Time("cutoff", cutoff))
}
