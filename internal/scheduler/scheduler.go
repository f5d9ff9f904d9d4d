// Package scheduler computes crawl priorities and dispatches crawl jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/metrics"
	"github.com/wildsight/tigerwatch/internal/monitor"
)

// Priority weights. Additive and un-normalized; later terms dominate
// intentionally to reflect operational urgency. Only the rank order they
// induce is relied on.
const (
	referenceBonus    = 100
	perTigerWeight    = 10
	perViolationWt    = 15
	perSocialSourceWt = 5
	staleBonus        = 20
	neverCrawledBonus = 30
	staleCutoff       = 30 * 24 * time.Hour
)

// Config bounds scheduler behavior.
type Config struct {
	Staleness     time.Duration
	MaxPerCycle   int
	ReferenceOnly bool
}

// Scheduler selects due facilities and hands them to the job queue.
type Scheduler struct {
	facilities monitor.FacilityStore
	histories  monitor.HistoryStore
	queue      monitor.Queue
	ids        monitor.IDGenerator
	clock      monitor.Clock
	cfg        Config
	logger     *zap.Logger
}

// New builds a Scheduler.
func New(
	facilities monitor.FacilityStore,
	histories monitor.HistoryStore,
	queue monitor.Queue,
	ids monitor.IDGenerator,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPerCycle <= 0 {
		cfg.MaxPerCycle = 10
	}
	return &Scheduler{
		facilities: facilities,
		histories:  histories,
		queue:      queue,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Priority scores a facility for crawl urgency. Always >= 0 and
// monotonically non-decreasing in tiger count, violation count, and
// social-source count.
func (s *Scheduler) Priority(f monitor.Facility, last *monitor.CrawlHistory) int {
	score := 0
	if f.ReferenceFacility {
		score += referenceBonus
	}
	score += f.KnownTigerCount * perTigerWeight
	score += f.ViolationCount * perViolationWt
	score += len(f.SocialMediaLinks) * perSocialSourceWt

	switch {
	case f.LastCrawledAt == nil:
		score += neverCrawledBonus
	case s.clock.Now().Sub(*f.LastCrawledAt) > staleCutoff:
		score += staleBonus
	}

	// A failed previous run nudges the facility back up the queue.
	if last != nil && last.Status == monitor.CrawlFailed {
		score += perSocialSourceWt
	}
	return score
}

// DueForCrawl returns the facilities whose last crawl is missing or
// older than the staleness window, sorted by priority descending and
// capped at maxCount.
func (s *Scheduler) DueForCrawl(ctx context.Context, maxCount int, referenceOnly bool) ([]monitor.Facility, error) {
	all, err := s.facilities.ListFacilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}

	now := s.clock.Now()
	type scored struct {
		facility monitor.Facility
		priority int
	}
	var due []scored
	for _, f := range all {
		if referenceOnly && !f.ReferenceFacility {
			continue
		}
		if f.LastCrawledAt != nil && now.Sub(*f.LastCrawledAt) < s.cfg.Staleness {
			continue
		}
		last := s.latestHistory(ctx, f.ID)
		due = append(due, scored{facility: f, priority: s.Priority(f, last)})
	}

	sort.SliceStable(due, func(a, b int) bool {
		return due[a].priority > due[b].priority
	})

	if maxCount > 0 && len(due) > maxCount {
		due = due[:maxCount]
	}
	out := make([]monitor.Facility, 0, len(due))
	for _, d := range due {
		out = append(out, d.facility)
	}
	return out, nil
}

// Dispatch enqueues one crawl job for the facility and returns the job
// ID. It never blocks on job completion. Facilities with no crawlable
// sources fail with monitor.ErrNoSources.
func (s *Scheduler) Dispatch(ctx context.Context, facilityID string) (string, error) {
	facility, err := s.facilities.GetFacility(ctx, facilityID)
	if err != nil {
		return "", fmt.Errorf("load facility %s: %w", facilityID, err)
	}
	if !facility.HasSources() {
		metrics.ObserveDispatchFailure("no_sources")
		return "", fmt.Errorf("facility %s: %w", facilityID, monitor.ErrNoSources)
	}

	jobID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	item := monitor.QueueItem{
		JobID:      jobID,
		FacilityID: facilityID,
		Submitted:  s.clock.Now().Unix(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		metrics.ObserveDispatchFailure("enqueue")
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	if err := s.facilities.TouchLastCrawled(ctx, facilityID, s.clock.Now()); err != nil {
		// The job is already queued; a failed stamp only skews the
		// next cycle's staleness view.
		s.logger.Warn("failed to stamp last_crawled_at",
			zap.String("facility_id", facilityID),
			zap.Error(err),
		)
	}

	s.logger.Info("crawl job dispatched",
		zap.String("job_id", jobID),
		zap.String("facility_id", facilityID),
	)
	return jobID, nil
}

// DispatchBatch dispatches the given facilities, or self-selects when
// facilityIDs is empty. Per-facility failures are collected and never
// abort sibling dispatches.
func (s *Scheduler) DispatchBatch(ctx context.Context, facilityIDs []string) monitor.BatchResult {
	if len(facilityIDs) == 0 {
		due, err := s.DueForCrawl(ctx, s.cfg.MaxPerCycle, s.cfg.ReferenceOnly)
		if err != nil {
			s.logger.Error("facility selection failed", zap.Error(err))
			return monitor.BatchResult{
				Failed: []monitor.DispatchFailure{{FacilityID: "*", Reason: err.Error()}},
			}
		}
		for _, f := range due {
			facilityIDs = append(facilityIDs, f.ID)
		}
	}

	var result monitor.BatchResult
	for _, id := range facilityIDs {
		if _, err := s.Dispatch(ctx, id); err != nil {
			result.Failed = append(result.Failed, monitor.DispatchFailure{
				FacilityID: id,
				Reason:     err.Error(),
			})
			continue
		}
		result.Scheduled = append(result.Scheduled, id)
	}

	s.logger.Info("batch dispatch finished",
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("failed", len(result.Failed)),
	)
	return result
}

// RunCycle performs one scheduling pass: select due facilities, dispatch
// them, report the batch outcome.
func (s *Scheduler) RunCycle(ctx context.Context) monitor.BatchResult {
	return s.DispatchBatch(ctx, nil)
}

func (s *Scheduler) latestHistory(ctx context.Context, facilityID string) *monitor.CrawlHistory {
	h, err := s.histories.LatestHistory(ctx, facilityID)
	if err != nil {
		if !errors.Is(err, monitor.ErrNotFound) {
			s.logger.Debug("history lookup failed", zap.String("facility_id", facilityID), zap.Error(err))
		}
		return nil
	}
	return &h
}
