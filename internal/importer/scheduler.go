package importer

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/pkg/config"
	apperrors "github.com/kennangle/studio-insights-api/pkg/errors"
)

// JobStarter creates a scheduled import for an organization over the
// configured trailing window. Implemented by the import service.
type JobStarter interface {
	StartScheduled(ctx context.Context, organizationID string) error
}

// Scheduler kicks off nightly imports per organization using cron.
type Scheduler struct {
	cron    *cron.Cron
	starter JobStarter
	cfg     config.SchedulerConfig
	logger  *zap.Logger
}

// NewScheduler constructs the scheduler. Call Start to register entries.
func NewScheduler(cfg config.SchedulerConfig, starter JobStarter, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		starter: starter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers one cron entry per configured organization and begins
// scheduling. An organization with an import already in flight is skipped
// quietly; everything else logs a warning.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("import scheduler disabled")
		return nil
	}
	for _, org := range s.cfg.Organizations {
		orgID := org
		_, err := s.cron.AddFunc(s.cfg.CronSpec, func() {
			if err := s.starter.StartScheduled(context.Background(), orgID); err != nil {
				appErr := apperrors.FromError(err)
				if appErr.Code == apperrors.ErrImportActive.Code {
					s.logger.Info("scheduled import skipped, another import is active",
						zap.String("organization_id", orgID))
					return
				}
				s.logger.Warn("scheduled import failed to start",
					zap.String("organization_id", orgID), zap.Error(err))
				return
			}
			s.logger.Info("scheduled import started", zap.String("organization_id", orgID))
		})
		if err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("import scheduler started",
		zap.String("spec", s.cfg.CronSpec),
		zap.Int("organizations", len(s.cfg.Organizations)))
	return nil
}

// Stop halts scheduling and waits for running entries to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
