package usecase

import (
	"context"
	"log/slog"
	"time"

	"periodic-engine/internal/domain"
)

// SchedularService runs the cron scheduler on whichever node holds leadership.
type SchedularService struct {
	leaderManager domain.LeaderElectionManager
	schedular     domain.Schedular
	jobRepo       domain.JobRepository
	nodeID        string
	retryDelay    time.Duration
	logger        *slog.Logger
}

func NewSchedularService(leaderManager domain.LeaderElectionManager, schedular domain.Schedular, jobRepo domain.JobRepository, nodeID string, logger *slog.Logger) *SchedularService {
	return &SchedularService{
		leaderManager: leaderManager,
		schedular:     schedular,
		jobRepo:       jobRepo,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
		logger:        logger.With("component", "schedular-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership until ctx ends. While leader, every stored
// definition with a cron expression is scheduled.
func (s *SchedularService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler service shutting down")
			s.schedular.Stop()
			return ctx.Err()
		default:
		}

		s.logger.Info("campaigning for leadership")
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("leadership campaign failed, retrying", "error", err, "retry_in", s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		s.logger.Info("became the leader, starting the scheduler")
		leaderCtx, cancel := context.WithCancel(ctx)
		s.runSchedular(leaderCtx)

		select {
		case <-lostLeadershipCh:
			s.logger.Warn("lost leadership, stopping the scheduler")
			cancel()
			s.schedular.Stop()
		case <-ctx.Done():
			cancel()
			s.schedular.Stop()
			resignCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.leaderManager.Resign(resignCtx); err != nil {
				s.logger.Warn("failed to resign leadership", "error", err)
			}
			done()
			return ctx.Err()
		}
	}
}

func (s *SchedularService) runSchedular(ctx context.Context) {
	jobs, err := s.jobRepo.List(ctx)
	if err != nil {
		s.logger.Error("failed to load jobs for scheduler", "error", err)
		return
	}

	for _, job := range jobs {
		if job.CronExpr == "" {
			continue
		}
		if err := s.schedular.AddJob(job); err != nil {
			s.logger.Error("failed to schedule stored job", "job_name", job.Name, "error", err)
		}
	}

	go func() {
		if err := s.schedular.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler stopped unexpectedly", "error", err)
		}
	}()
}
