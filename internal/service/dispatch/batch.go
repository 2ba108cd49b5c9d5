package dispatch

import (
	"context"
	"time"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
)

// CampaignRun is the batch outcome for one campaign.
type CampaignRun struct {
	CampaignID string `json:"campaignId"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Activated  int    `json:"activated"`
	Completed  bool   `json:"completed"`
	Error      string `json:"error,omitempty"`
}

// BatchResult summarizes one ProcessAllRunningCampaigns invocation.
type BatchResult struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Campaigns []CampaignRun `json:"campaigns"`
	Timestamp time.Time     `json:"timestamp"`
	Skipped   bool          `json:"skipped,omitempty"`
}

// ProcessAllRunningCampaigns activates due recipients and completes drained
// campaigns, one campaign at a time, oldest first. A failing campaign is
// recorded and the batch moves on. Only listing the campaigns can fail the
// whole run.
func (s *Service) ProcessAllRunningCampaigns(ctx context.Context, now time.Time) (*BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
	defer cancel()

	res := &BatchResult{Campaigns: []CampaignRun{}, Timestamp: now.UTC()}

	if s.newLock != nil {
		lock := s.newLock()
		ok, err := lock.Acquire(ctx)
		switch {
		case err != nil:
			logger.Warn("batch lock unavailable, running anyway", "error", err)
		case !ok:
			logger.Info("batch already running elsewhere, skipping")
			res.Skipped = true
			return res, nil
		default:
			defer func() {
				// Release with a fresh context so an expired batch deadline
				// does not leave the lock held.
				rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer rcancel()
				if err := lock.Release(rctx); err != nil {
					logger.Warn("batch lock release failed", "error", err)
				}
			}()
		}
	}

	campaigns, err := s.store.ListRunningCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	res.Total = len(campaigns)

	for i := range campaigns {
		c := &campaigns[i]
		run := CampaignRun{CampaignID: c.ID, Name: c.Name}

		if err := ctx.Err(); err != nil {
			run.Error = err.Error()
			res.Failed++
			res.Campaigns = append(res.Campaigns, run)
			continue
		}

		if err := s.processCampaign(ctx, c, now, &run); err != nil {
			run.Error = err.Error()
			res.Failed++
			logger.Error("campaign processing failed", "campaign_id", c.ID, "error", err)
		} else {
			run.Success = true
			res.Processed++
		}
		res.Campaigns = append(res.Campaigns, run)
	}

	logger.Info("batch finished", "processed", res.Processed, "failed", res.Failed, "total", res.Total)

	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, res); err != nil {
			logger.Warn("run archive write failed", "error", err)
		}
	}
	return res, nil
}

func (s *Service) processCampaign(ctx context.Context, c *domain.Campaign, now time.Time, run *CampaignRun) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CampaignTimeout)
	defer cancel()

	n, err := s.engine.Activate(ctx, c, now)
	if err != nil {
		return err
	}
	run.Activated = n

	done, err := s.engine.CompleteIfDrained(ctx, c.ID, now)
	if err != nil {
		return err
	}
	run.Completed = done
	if done {
		logger.Info("campaign completed", "campaign_id", c.ID)
		s.publishCompleted(ctx, c.ID, now)
	}
	return nil
}
