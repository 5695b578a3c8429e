package core

import (
	"context"
	"time"
)

const (
	DefaultWatermarkPublished = "Fri, 01 Sep 1999 00:00:00 Z"
	DefaultWatermarkGuid      = "initial_value"
)

type WatermarkRepository interface {
	EnsureTable(ctx context.Context) error
	Get(ctx context.Context, partitionKey string, rowKey string) (*Watermark, error)
	Create(ctx context.Context, watermark Watermark) error
	Update(ctx context.Context, watermark Watermark) error
}

type RunRepository interface {
	InsertRunReport(ctx context.Context, report RunReport) error
	ListRunReports(ctx context.Context, limit int) ([]RunReport, error)
}

type FeedSource interface {
	Fetch(ctx context.Context, feedUrl string) ([]FeedEntry, error)
}

type Notifier interface {
	Send(ctx context.Context, msg NotificationMessage) error
}

type TicketCreator interface {
	CreateIssue(ctx context.Context, entry FeedEntry) (string, error)
}

type Alerter interface {
	Notify(ctx context.Context, msg string) error
}

type AnnouncementService interface {
	Run(ctx context.Context) (*RunReport, error)
	RunJob(ctx context.Context) error
	GetWatermark(ctx context.Context) (*Watermark, error)
	GetRunReports(ctx context.Context, limit int) ([]RunReport, error)
}

// Watermark marks the most recent feed entry that has been processed.
// Published is kept in the feed's own timestamp format.
type Watermark struct {
	PartitionKey string    `db:"partition_key" json:"partitionKey"`
	RowKey       string    `db:"row_key" json:"rowKey"`
	Published    string    `db:"published" json:"published"`
	Guid         string    `db:"guid" json:"guid"`
	Version      int64     `db:"version" json:"version"`
	UpdatedAt    time.Time `db:"-" json:"updatedAt"`
}

func NewDefaultWatermark(partitionKey string, rowKey string) Watermark {
	return Watermark{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Published:    DefaultWatermarkPublished,
		Guid:         DefaultWatermarkGuid,
		Version:      1,
	}
}

func (w Watermark) PublishedAt() (time.Time, error) {
	return ParsePublished(w.Published)
}

type FeedEntry struct {
	Guid      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary"`
	Published string `json:"published"`
}

func (e FeedEntry) PublishedAt() (time.Time, error) {
	return ParsePublished(e.Published)
}

type NotificationMessage struct {
	Subject   string
	HTMLBody  string
	Recipient string
	Sender    string
}

type Outcome string

const (
	OutcomeNoNewEntries            Outcome = "no_new_entries"
	OutcomeNotified                Outcome = "notified"
	OutcomePersistedButNotNotified Outcome = "persisted_but_not_notified"
	OutcomeFailed                  Outcome = "failed"
)

type RunReport struct {
	RunId              string    `json:"runId"`
	StartedAt          time.Time `json:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt"`
	Outcome            Outcome   `json:"outcome"`
	NovelCount         int       `json:"novelCount"`
	TicketsCreated     int       `json:"ticketsCreated"`
	WatermarkGuid      string    `json:"watermarkGuid"`
	WatermarkPublished string    `json:"watermarkPublished"`
	Error              string    `json:"error,omitempty"`
}

func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
