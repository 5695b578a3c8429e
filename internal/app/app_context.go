package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bjarke-xyz/retirement-watch/internal/alert"
	"github.com/bjarke-xyz/retirement-watch/internal/announce"
	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/feed"
	"github.com/bjarke-xyz/retirement-watch/internal/mail"
	"github.com/bjarke-xyz/retirement-watch/internal/repository"
	"github.com/bjarke-xyz/retirement-watch/internal/repository/db"
	"github.com/bjarke-xyz/retirement-watch/internal/ticket"
)

func AppContext(cfg *config.Config, log *slog.Logger) *core.AppContext {
	appContext := &core.AppContext{
		Config: cfg,
		Infra: &core.AppInfra{
			Feed: feed.NewFetcher(feed.Options{
				Timeout:       cfg.FetchTimeout,
				RetryAttempts: cfg.RetryAttempts,
			}, log),
			Mail:   mail.NewMail(cfg, log),
			Alerts: alert.NewNtfy(cfg, log),
		},
		Deps: &core.AppDeps{},
	}
	if cfg.TicketingEnabled() {
		appContext.Infra.Tickets = ticket.NewClient(cfg, log)
	}
	appContext.Infra.Watermarks = repository.NewSqlWatermarks(appContext)
	appContext.Infra.Runs = repository.NewSqlRuns(appContext)
	appContext.Deps.Service = announce.NewService(appContext, log)
	return appContext
}

// Initialise migrates the store and makes sure the watermark table exists.
func Initialise(ctx context.Context, appContext *core.AppContext) error {
	dbConn, err := db.Open(appContext.Config)
	if err != nil {
		return fmt.Errorf("error opening db: %w", err)
	}
	err = dbConn.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("error connecting to db: %w", err)
	}
	err = db.Migrate("up", dbConn)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	err = appContext.Infra.Watermarks.EnsureTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure watermark table: %w", err)
	}
	return nil
}

func Dispose(appContext *core.AppContext) error {
	return db.Close(appContext.Config)
}
