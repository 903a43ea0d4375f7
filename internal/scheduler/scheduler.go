// Package scheduler promotes due scheduled campaigns into dispatch runs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundpost/campaigner/internal/dispatch"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/repository"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Scheduler polls for scheduled campaigns whose time has come and runs the
// full send pipeline for each. One campaign at a time: a long dispatch run
// simply delays the next poll.
type Scheduler struct {
	campaigns *repository.CampaignRepository
	pipeline  *dispatch.Pipeline
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. A zero interval uses DefaultInterval.
func New(campaigns *repository.CampaignRepository, pipeline *dispatch.Pipeline, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		campaigns: campaigns,
		pipeline:  pipeline,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start launches the poll loop in a goroutine.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", "interval", s.interval.String())

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Tick runs one poll pass. Exported so the serve command can trigger an
// immediate pass and so tests can drive the scheduler without the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.campaigns.GetScheduledDue(time.Now())
	if err != nil {
		s.logger.Error("failed to query due campaigns", "error", err)
		return
	}

	for i := range due {
		campaign := &due[i]
		s.logger.Info("dispatching scheduled campaign",
			"campaign_id", campaign.ID,
			"name", campaign.Name,
			"scheduled_at", campaign.ScheduledAt,
		)

		stats, err := s.pipeline.Execute(ctx, campaign)
		if err != nil {
			// Park the campaign back in draft so a broken configuration
			// is not retried every tick.
			s.logger.Error("scheduled dispatch failed",
				"campaign_id", campaign.ID,
				"error", err,
			)
			if uerr := s.campaigns.UpdateStatus(campaign.ID, models.CampaignDraft); uerr != nil {
				s.logger.Error("failed to park campaign", "campaign_id", campaign.ID, "error", uerr)
			}
			continue
		}

		s.logger.Info("scheduled campaign dispatched",
			"campaign_id", campaign.ID,
			"sent", stats.Sent,
			"failed", stats.Failed,
		)

		if err := ctx.Err(); err != nil {
			return
		}
	}
}
