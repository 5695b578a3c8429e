package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/metrics"
	"github.com/bjarke-xyz/retirement-watch/internal/repository/db"
)

const (
	BackupJobIdentifier = "backup-db"
	backupKey           = "retirement-watch/db-backup.db"
)

var ErrBackupUnsupported = errors.New("backup is only supported for sqlite stores")

type Backup struct {
	appContext *core.AppContext
	log        *slog.Logger
	newStore   func(ctx context.Context) (ObjectStore, error)
}

func NewBackup(appContext *core.AppContext, log *slog.Logger) *Backup {
	return &Backup{
		appContext: appContext,
		log:        log,
		newStore: func(ctx context.Context) (ObjectStore, error) {
			return NewBackupClientFromConfig(ctx, appContext.Config)
		},
	}
}

// BackupDbAndLogError runs BackupDb and sends an alert when it fails.
func (b *Backup) BackupDbAndLogError(ctx context.Context) error {
	err := b.BackupDb(ctx)
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to backup db", "error", err)
		if b.appContext.Infra != nil && b.appContext.Infra.Alerts != nil {
			notifyErr := b.appContext.Infra.Alerts.Notify(ctx, "retirement-watch failed to backup: "+err.Error())
			if notifyErr != nil {
				b.log.ErrorContext(ctx, "Failed to send notification about backup error", "error", notifyErr)
			}
		}
	}
	return err
}

// BackupDb copies the sqlite store to BACKUP_DB_PATH with VACUUM INTO and uploads the
// copy. A remote backup that is larger than the local copy is never overwritten.
func (b *Backup) BackupDb(ctx context.Context) error {
	cfg := b.appContext.Config
	if db.DriverName(cfg.ConnectionString()) != db.DriverSqlite {
		return ErrBackupUnsupported
	}
	backupPath := cfg.BackupDbPath

	err := os.Remove(backupPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale backup file: %w", err)
	}
	db, err := db.Open(cfg)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "VACUUM INTO ?", backupPath)
	if err != nil {
		return fmt.Errorf("failed to vacuum into %v: %w", backupPath, err)
	}
	defer os.Remove(backupPath)

	dbBackupFile, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup db file: %w", err)
	}
	defer dbBackupFile.Close()
	dbBackupFileStat, err := dbBackupFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat db backup file: %w", err)
	}
	localSize := dbBackupFileStat.Size()
	metrics.BackupSizeSet(localSize)

	store, err := b.newStore(ctx)
	if err != nil {
		return err
	}
	bucket := cfg.S3BackupBucket
	key := backupKey

	objects, err := store.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &key,
	})
	if err != nil {
		return fmt.Errorf("failed to list backup objects: %w", err)
	}
	for _, obj := range objects.Contents {
		if obj.Key == nil || *obj.Key != key {
			continue
		}
		if obj.Size != nil && *obj.Size > localSize {
			return fmt.Errorf("attempting to over-write large file (%v) in bucket, with small local file (%v)", *obj.Size, localSize)
		}
	}

	_, err = store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          dbBackupFile,
		ContentLength: aws.Int64(localSize),
	})
	if err != nil {
		return fmt.Errorf("failed to upload db backup file: %w", err)
	}
	b.log.InfoContext(ctx, "Db backup is uploaded",
		"bucket", bucket,
		"key", key,
		"sizeBytes", localSize)
	return nil
}
