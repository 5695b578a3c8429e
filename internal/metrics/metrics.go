package metrics

import (
	"strconv"

	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retirement_watch_runs_total",
	Help: "Number of announcement runs, by outcome",
}, []string{"outcome"})

var novelEntriesCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "retirement_watch_novel_entries_total",
	Help: "Number of novel feed entries detected",
})

var feedFetchStatusCodes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retirement_watch_feed_fetch_status_codes",
	Help: "The total number of feed fetch status codes",
}, []string{"status_code"})

var mailCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retirement_watch_mails_sent",
	Help: "Number of mails sent",
}, []string{"type"})

var mailErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retirement_watch_mails_error",
	Help: "Number of mail errors",
}, []string{"type"})

var ticketCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retirement_watch_tickets",
	Help: "Number of ticket creation attempts, by result",
}, []string{"result"})

var backupSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "retirement_watch_db_backup_size_bytes",
	Help: "Size in bytes of the db (measured at backup time)",
})

func RunInc(outcome core.Outcome) {
	runCounter.WithLabelValues(string(outcome)).Inc()
}

func NovelEntriesAdd(count int) {
	novelEntriesCounter.Add(float64(count))
}

func FeedFetchStatusInc(statusCode int) {
	feedFetchStatusCodes.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func MailSentInc(mailType string) {
	mailCounter.WithLabelValues(mailType).Inc()
}

func MailErrorInc(mailType string) {
	mailErrorCounter.WithLabelValues(mailType).Inc()
}

func TicketCreatedInc() {
	ticketCounter.WithLabelValues("created").Inc()
}

func TicketErrorInc() {
	ticketCounter.WithLabelValues("error").Inc()
}

func BackupSizeSet(bytes int64) {
	backupSizeGauge.Set(float64(bytes))
}
