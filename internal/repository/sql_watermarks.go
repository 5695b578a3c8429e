package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/repository/db"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type sqlWatermarkRepository struct {
	appContext *core.AppContext
}

func NewSqlWatermarks(appContext *core.AppContext) core.WatermarkRepository {
	return &sqlWatermarkRepository{appContext: appContext}
}

type watermarkRow struct {
	PartitionKey string `db:"partition_key"`
	RowKey       string `db:"row_key"`
	Published    string `db:"published"`
	Guid         string `db:"guid"`
	Version      int64  `db:"version"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (w watermarkRow) toCore() *core.Watermark {
	return &core.Watermark{
		PartitionKey: w.PartitionKey,
		RowKey:       w.RowKey,
		Published:    w.Published,
		Guid:         w.Guid,
		Version:      w.Version,
		UpdatedAt:    time.Unix(w.UpdatedAt, 0).UTC(),
	}
}

func (r *sqlWatermarkRepository) table() (string, error) {
	name := r.appContext.Config.WatermarkTable
	if !tableNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid watermark table name %q", name)
	}
	return name, nil
}

func (r *sqlWatermarkRepository) EnsureTable(ctx context.Context) error {
	table, err := r.table()
	if err != nil {
		return err
	}
	db, err := db.Open(r.appContext.Config)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		published TEXT NOT NULL,
		guid TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (partition_key, row_key)
	)`, table)
	_, err = db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("error creating table %v: %w", table, err)
	}
	return nil
}

func (r *sqlWatermarkRepository) Get(ctx context.Context, partitionKey string, rowKey string) (*core.Watermark, error) {
	table, err := r.table()
	if err != nil {
		return nil, err
	}
	db, err := db.Open(r.appContext.Config)
	if err != nil {
		return nil, err
	}
	query := db.Rebind(fmt.Sprintf("SELECT partition_key, row_key, published, guid, version, updated_at FROM %s WHERE partition_key = ? AND row_key = ?", table))
	var row watermarkRow
	err = db.GetContext(ctx, &row, query, partitionKey, rowKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("watermark %v/%v: %w", partitionKey, rowKey, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting watermark %v/%v: %w", partitionKey, rowKey, err)
	}
	return row.toCore(), nil
}

// Create inserts the watermark unless a record with the same keys already exists.
func (r *sqlWatermarkRepository) Create(ctx context.Context, watermark core.Watermark) error {
	table, err := r.table()
	if err != nil {
		return err
	}
	db, err := db.Open(r.appContext.Config)
	if err != nil {
		return err
	}
	if watermark.Version < 1 {
		watermark.Version = 1
	}
	query := db.Rebind(fmt.Sprintf("INSERT INTO %s (partition_key, row_key, published, guid, version, updated_at) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (partition_key, row_key) DO NOTHING", table))
	_, err = db.ExecContext(ctx, query, watermark.PartitionKey, watermark.RowKey, watermark.Published, watermark.Guid, watermark.Version, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("error creating watermark %v/%v: %w", watermark.PartitionKey, watermark.RowKey, err)
	}
	return nil
}

// Update overwrites the record only if its version still equals watermark.Version,
// and bumps the stored version.
func (r *sqlWatermarkRepository) Update(ctx context.Context, watermark core.Watermark) error {
	table, err := r.table()
	if err != nil {
		return err
	}
	db, err := db.Open(r.appContext.Config)
	if err != nil {
		return err
	}
	query := db.Rebind(fmt.Sprintf("UPDATE %s SET published = ?, guid = ?, version = version + 1, updated_at = ? WHERE partition_key = ? AND row_key = ? AND version = ?", table))
	res, err := db.ExecContext(ctx, query, watermark.Published, watermark.Guid, time.Now().UTC().Unix(), watermark.PartitionKey, watermark.RowKey, watermark.Version)
	if err != nil {
		return fmt.Errorf("error updating watermark %v/%v: %w", watermark.PartitionKey, watermark.RowKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows for watermark %v/%v: %w", watermark.PartitionKey, watermark.RowKey, err)
	}
	if affected == 0 {
		return fmt.Errorf("watermark %v/%v at version %v: %w", watermark.PartitionKey, watermark.RowKey, watermark.Version, core.ErrWatermarkConflict)
	}
	return nil
}
