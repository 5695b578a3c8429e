package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/xeonx/timeago"
)

const defaultRunsLimit = 20

type BackupRunner interface {
	BackupDbAndLogError(ctx context.Context) error
}

var publishedAgoConfig = func() timeago.Config {
	cfg := timeago.English
	cfg.Max = 100 * timeago.Year
	return cfg
}()

type api struct {
	context *core.AppContext
	backup  BackupRunner
	log     *slog.Logger
}

// NewAPI creates the admin handlers. backup may be nil when backups are not configured.
func NewAPI(context *core.AppContext, backup BackupRunner, log *slog.Logger) *api {
	return &api{
		context: context,
		backup:  backup,
		log:     log,
	}
}

func (a *api) Route(r *gin.Engine) {
	apiGroup := r.Group("/api")
	apiGroup.POST("/job", a.RunJob())
	apiGroup.POST("/backup-db", a.BackupDb())
	apiGroup.GET("/watermark", a.GetWatermark())
	apiGroup.GET("/runs", a.GetRuns())
}

func (a *api) authorized(c *gin.Context) bool {
	jobKey := a.context.Config.JobKey
	return jobKey != "" && c.GetHeader("Authorization") == jobKey
}

func (a *api) RunJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authorized(c) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		service := a.context.Deps.Service
		fireAndForget := c.Query("fireAndForget") == "true"
		if fireAndForget {
			go service.Run(context.Background())
			c.Status(http.StatusAccepted)
			return
		}
		report, err := service.Run(c.Request.Context())
		if err != nil {
			a.log.ErrorContext(c.Request.Context(), "Manual run failed", "error", err)
			c.JSON(http.StatusInternalServerError, report)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func (a *api) BackupDb() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authorized(c) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if a.backup == nil {
			c.String(http.StatusServiceUnavailable, "backup is not configured")
			return
		}
		fireAndForget := c.Query("fireAndForget") == "true"
		if fireAndForget {
			go a.backup.BackupDbAndLogError(context.Background())
			c.Status(http.StatusAccepted)
			return
		}
		err := a.backup.BackupDbAndLogError(c.Request.Context())
		if err != nil {
			c.String(http.StatusInternalServerError, "backup failed: %v", err)
			return
		}
		c.Status(http.StatusOK)
	}
}

type watermarkResponse struct {
	core.Watermark
	PublishedAgo string `json:"publishedAgo"`
}

func (a *api) GetWatermark() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authorized(c) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		watermark, err := a.context.Deps.Service.GetWatermark(c.Request.Context())
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no watermark yet"})
				return
			}
			a.log.ErrorContext(c.Request.Context(), "Failed to get watermark", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp := watermarkResponse{Watermark: *watermark}
		if published, err := watermark.PublishedAt(); err == nil {
			resp.PublishedAgo = publishedAgoConfig.FormatReference(published, time.Now())
		}
		c.JSON(http.StatusOK, resp)
	}
}

type runResponse struct {
	core.RunReport
	DurationMs int64 `json:"durationMs"`
}

func (a *api) GetRuns() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authorized(c) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		limit := defaultRunsLimit
		if limitStr := c.Query("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		reports, err := a.context.Deps.Service.GetRunReports(c.Request.Context(), limit)
		if err != nil {
			a.log.ErrorContext(c.Request.Context(), "Failed to get run reports", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, lo.Map(reports, func(r core.RunReport, _ int) runResponse {
			return runResponse{RunReport: r, DurationMs: r.Duration().Milliseconds()}
		}))
	}
}
