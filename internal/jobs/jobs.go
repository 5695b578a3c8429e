package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

type JobFunc func(ctx context.Context) error
type jobInfo struct {
	name string
	job  JobFunc
}
type JobManager struct {
	scheduler *gocron.Scheduler
	log       *slog.Logger
	mu        sync.RWMutex
	jobs      map[string]jobInfo
}

func NewJobManager(log *slog.Logger) *JobManager {
	scheduler := gocron.NewScheduler(time.UTC)
	// a tick that fires while the previous run of the same job is active is dropped
	scheduler.SingletonModeAll()

	return &JobManager{
		scheduler: scheduler,
		log:       log,
		jobs:      make(map[string]jobInfo),
	}
}

func (j *JobManager) Start() {
	j.scheduler.StartAsync()
}

func (j *JobManager) Stop() {
	j.scheduler.Stop()
}

// Cron registers job under name. The job is only scheduled when enabled, but can
// always be started with RunJob.
func (j *JobManager) Cron(cronStr string, name string, job JobFunc, enabled bool) error {
	j.mu.Lock()
	j.jobs[name] = jobInfo{
		name: name,
		job:  job,
	}
	j.mu.Unlock()
	if enabled {
		_, err := j.scheduler.Cron(cronStr).Do(func() {
			j.RunJob(context.Background(), name)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule job %q with %q: %w", name, cronStr, err)
		}
		j.log.Info("Job is scheduled", "job", name, "cron", cronStr)
	}
	return nil
}

func (j *JobManager) HasJob(name string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, ok := j.jobs[name]
	return ok
}

func (j *JobManager) RunJob(ctx context.Context, name string) {
	j.mu.RLock()
	job, ok := j.jobs[name]
	j.mu.RUnlock()
	if !ok {
		j.log.WarnContext(ctx, "Unknown job", "job", name)
		return
	}
	start := time.Now()
	j.log.InfoContext(ctx, "Starting job", "job", job.name)
	defer func(job jobInfo) {
		if r := recover(); r != nil {
			j.log.ErrorContext(ctx, "Job panicked",
				"job", job.name,
				"panic", fmt.Sprint(r),
				"stacktrace", string(debug.Stack()))
		}
	}(job)
	err := job.job(ctx)
	duration := time.Since(start)
	if err != nil {
		j.log.ErrorContext(ctx, "Job failed",
			"job", job.name,
			"error", err,
			"durationMs", duration.Milliseconds())
	} else {
		j.log.InfoContext(ctx, "Job completed successfully",
			"job", job.name,
			"durationMs", duration.Milliseconds())
	}
}
