package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/repository/db"
	"github.com/samber/lo"
)

const maxRunReportsLimit = 500

type sqlRunRepository struct {
	appContext *core.AppContext
}

func NewSqlRuns(appContext *core.AppContext) core.RunRepository {
	return &sqlRunRepository{appContext: appContext}
}

type runReportRow struct {
	RunId              string `db:"run_id"`
	StartedAt          int64  `db:"started_at"`
	FinishedAt         int64  `db:"finished_at"`
	Outcome            string `db:"outcome"`
	NovelCount         int    `db:"novel_count"`
	TicketsCreated     int    `db:"tickets_created"`
	WatermarkGuid      string `db:"watermark_guid"`
	WatermarkPublished string `db:"watermark_published"`
	Error              string `db:"error"`
}

func (r *sqlRunRepository) InsertRunReport(ctx context.Context, report core.RunReport) error {
	db, err := db.Open(r.appContext.Config)
	if err != nil {
		return err
	}
	row := runReportRow{
		RunId:              report.RunId,
		StartedAt:          report.StartedAt.UTC().UnixMilli(),
		FinishedAt:         report.FinishedAt.UTC().UnixMilli(),
		Outcome:            string(report.Outcome),
		NovelCount:         report.NovelCount,
		TicketsCreated:     report.TicketsCreated,
		WatermarkGuid:      report.WatermarkGuid,
		WatermarkPublished: report.WatermarkPublished,
		Error:              report.Error,
	}
	query := `INSERT INTO run_reports (run_id, started_at, finished_at, outcome, novel_count, tickets_created, watermark_guid, watermark_published, error)
	VALUES (:run_id, :started_at, :finished_at, :outcome, :novel_count, :tickets_created, :watermark_guid, :watermark_published, :error)`
	_, err = db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("error inserting run report %v: %w", report.RunId, err)
	}
	return nil
}

func (r *sqlRunRepository) ListRunReports(ctx context.Context, limit int) ([]core.RunReport, error) {
	if limit <= 0 || limit > maxRunReportsLimit {
		limit = maxRunReportsLimit
	}
	db, err := db.Open(r.appContext.Config)
	if err != nil {
		return nil, err
	}
	var rows []runReportRow
	query := db.Rebind("SELECT run_id, started_at, finished_at, outcome, novel_count, tickets_created, watermark_guid, watermark_published, error FROM run_reports ORDER BY started_at DESC LIMIT ?")
	err = db.SelectContext(ctx, &rows, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing run reports: %w", err)
	}
	return lo.Map(rows, func(row runReportRow, _ int) core.RunReport {
		return core.RunReport{
			RunId:              row.RunId,
			StartedAt:          time.UnixMilli(row.StartedAt).UTC(),
			FinishedAt:         time.UnixMilli(row.FinishedAt).UTC(),
			Outcome:            core.Outcome(row.Outcome),
			NovelCount:         row.NovelCount,
			TicketsCreated:     row.TicketsCreated,
			WatermarkGuid:      row.WatermarkGuid,
			WatermarkPublished: row.WatermarkPublished,
			Error:              row.Error,
		}
	}), nil
}
