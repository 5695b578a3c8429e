package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/mail"
	"github.com/bjarke-xyz/retirement-watch/internal/metrics"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const JobIdentifier = "announcements"

// finishTimeout bounds the bookkeeping after a run, which must happen even when the run timed out.
const finishTimeout = 30 * time.Second

type Service struct {
	appContext *core.AppContext
	log        *slog.Logger
	mu         sync.Mutex
	now        func() time.Time
}

func NewService(appContext *core.AppContext, log *slog.Logger) *Service {
	return &Service{
		appContext: appContext,
		log:        log,
		now:        time.Now,
	}
}

// Run performs one poll: read the watermark, fetch the feed, persist the newest novel
// entry as the new watermark and email the novel entries. Runs are serialized.
// The returned report is never nil; err is set only when the outcome is failed.
func (s *Service) Run(ctx context.Context) (*core.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appContext.Config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.appContext.Config.RunTimeout)
		defer cancel()
	}

	report := &core.RunReport{
		RunId:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	log := s.log.With("runId", report.RunId)
	err := s.run(ctx, log, report)
	report.FinishedAt = s.now().UTC()
	if err != nil {
		report.Outcome = core.OutcomeFailed
		report.Error = err.Error()
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	s.finish(finishCtx, log, report)
	return report, err
}

func (s *Service) run(ctx context.Context, log *slog.Logger, report *core.RunReport) error {
	cfg := s.appContext.Config
	watermark, err := s.getOrCreateWatermark(ctx, log)
	if err != nil {
		return err
	}
	report.WatermarkGuid = watermark.Guid
	report.WatermarkPublished = watermark.Published

	entries, err := s.appContext.Infra.Feed.Fetch(ctx, cfg.FeedUrl)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}
	if !core.IsNewestFirst(entries) {
		log.WarnContext(ctx, "Feed is not ordered newest first, watermark may skip entries",
			"feedUrl", cfg.FeedUrl,
			"entryCount", len(entries))
	}

	novel, updated, err := core.DetectNovel(*watermark, entries)
	if err != nil {
		return fmt.Errorf("failed to detect novel entries: %w", err)
	}
	report.NovelCount = len(novel)
	if updated == nil {
		report.Outcome = core.OutcomeNoNewEntries
		log.InfoContext(ctx, "No new retirement updates since last execution",
			"watermarkGuid", watermark.Guid,
			"watermarkPublished", watermark.Published,
			"entryCount", len(entries))
		return nil
	}

	err = s.appContext.Infra.Watermarks.Update(ctx, *updated)
	if err != nil {
		return fmt.Errorf("failed to update watermark: %w", err)
	}
	report.WatermarkGuid = updated.Guid
	report.WatermarkPublished = updated.Published
	log.InfoContext(ctx, "Watermark is updated",
		"watermarkGuid", updated.Guid,
		"watermarkPublished", updated.Published,
		"novelGuids", lo.Map(novel, func(e core.FeedEntry, _ int) string { return e.Guid }))

	msg, skipped := mail.NewAnnouncementMessage(cfg, novel)
	for _, skipErr := range skipped {
		log.WarnContext(ctx, "Entry left out of notification", "error", skipErr)
	}
	err = s.appContext.Infra.Mail.Send(ctx, msg)
	if err != nil {
		report.Outcome = core.OutcomePersistedButNotNotified
		report.Error = err.Error()
		log.ErrorContext(ctx, "Watermark is persisted but notification failed",
			"error", err,
			"recipient", msg.Recipient,
			"novelCount", len(novel))
	} else {
		report.Outcome = core.OutcomeNotified
	}

	report.TicketsCreated = s.createTickets(ctx, log, novel)
	return nil
}

func (s *Service) getOrCreateWatermark(ctx context.Context, log *slog.Logger) (*core.Watermark, error) {
	cfg := s.appContext.Config
	repo := s.appContext.Infra.Watermarks
	watermark, err := repo.Get(ctx, cfg.WatermarkPartitionKey, cfg.WatermarkRowKey)
	if err == nil {
		return watermark, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}

	log.InfoContext(ctx, "Watermark is missing, creating default",
		"partitionKey", cfg.WatermarkPartitionKey,
		"rowKey", cfg.WatermarkRowKey)
	err = repo.Create(ctx, core.NewDefaultWatermark(cfg.WatermarkPartitionKey, cfg.WatermarkRowKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create default watermark: %w", err)
	}
	watermark, err = repo.Get(ctx, cfg.WatermarkPartitionKey, cfg.WatermarkRowKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark after create: %w", err)
	}
	return watermark, nil
}

func (s *Service) createTickets(ctx context.Context, log *slog.Logger, novel []core.FeedEntry) int {
	tickets := s.appContext.Infra.Tickets
	if tickets == nil {
		return 0
	}
	created := 0
	for _, entry := range novel {
		key, err := tickets.CreateIssue(ctx, entry)
		if err != nil {
			log.ErrorContext(ctx, "Failed to create ticket",
				"error", err,
				"entryGuid", entry.Guid)
			continue
		}
		log.InfoContext(ctx, "Ticket is created", "issueKey", key, "entryGuid", entry.Guid)
		created++
	}
	return created
}

func (s *Service) finish(ctx context.Context, log *slog.Logger, report *core.RunReport) {
	metrics.RunInc(report.Outcome)
	if report.Outcome != core.OutcomeFailed {
		metrics.NovelEntriesAdd(report.NovelCount)
	}

	err := s.appContext.Infra.Runs.InsertRunReport(ctx, *report)
	if err != nil {
		log.ErrorContext(ctx, "Failed to store run report", "error", err)
	}

	if report.Outcome == core.OutcomeFailed || report.Outcome == core.OutcomePersistedButNotNotified {
		alerts := s.appContext.Infra.Alerts
		if alerts != nil {
			msg := fmt.Sprintf("retirement-watch run %v ended as %v: %v", report.RunId, report.Outcome, report.Error)
			if err := alerts.Notify(ctx, msg); err != nil {
				log.ErrorContext(ctx, "Failed to send alert", "error", err)
			}
		}
	}

	log.InfoContext(ctx, "Run is finished",
		"outcome", report.Outcome,
		"novelCount", report.NovelCount,
		"ticketsCreated", report.TicketsCreated,
		"durationMs", report.Duration().Milliseconds())
}

func (s *Service) GetWatermark(ctx context.Context) (*core.Watermark, error) {
	cfg := s.appContext.Config
	return s.appContext.Infra.Watermarks.Get(ctx, cfg.WatermarkPartitionKey, cfg.WatermarkRowKey)
}

func (s *Service) GetRunReports(ctx context.Context, limit int) ([]core.RunReport, error) {
	return s.appContext.Infra.Runs.ListRunReports(ctx, limit)
}

// RunJob adapts Run to the job scheduler.
func (s *Service) RunJob(ctx context.Context) error {
	_, err := s.Run(ctx)
	return err
}
