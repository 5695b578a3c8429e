package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	FeedUrl string `env:"FEED_URL,required,notEmpty"`

	DbConnStr      string `env:"DB_CONN_STR,required,notEmpty"`
	TursoAuthToken string `env:"TURSO_AUTH_TOKEN"`

	WatermarkTable        string `env:"WATERMARK_TABLE,required,notEmpty"`
	WatermarkPartitionKey string `env:"WATERMARK_PARTITION_KEY,required,notEmpty"`
	WatermarkRowKey       string `env:"WATERMARK_ROW_KEY,required,notEmpty"`

	SmtpHost     string `env:"SMTP_HOST"`
	SmtpUsername string `env:"SMTP_USERNAME"`
	SmtpPassword string `env:"SMTP_PASSWORD"`
	SmtpPort     string `env:"SMTP_PORT"`
	SmtpTest     bool   `env:"SMTP_TEST"`

	AlertRecipient string `env:"ALERT_RECIPIENT,required,notEmpty"`
	AlertSubject   string `env:"ALERT_SUBJECT,required,notEmpty"`
	AlertSender    string `env:"ALERT_SENDER,required,notEmpty"`
	AlertHeading   string `env:"ALERT_HEADING" envDefault:"Azure Retirement announcements"`

	Schedule      string        `env:"SCHEDULE"       envDefault:"0 9 * * MON"`
	RunOnStartup  bool          `env:"RUN_ON_STARTUP" envDefault:"true"`
	RunTimeout    time.Duration `env:"RUN_TIMEOUT"    envDefault:"5m"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT"  envDefault:"30s"`
	SendTimeout   time.Duration `env:"SEND_TIMEOUT"   envDefault:"30s"`
	RetryAttempts uint64        `env:"RETRY_ATTEMPTS" envDefault:"3"`

	JiraUrl       string `env:"JIRA_URL"`
	JiraProjectId string `env:"JIRA_PROJECT_ID"`
	JiraUser      string `env:"JIRA_USER"`
	JiraToken     string `env:"JIRA_TOKEN"`
	JiraIssueType string `env:"JIRA_ISSUE_TYPE" envDefault:"Service request"`

	NtfyTopic   string `env:"NTFY_TOPIC"`
	NtfyBaseUrl string `env:"NTFY_BASE_URL" envDefault:"https://ntfy.sh"`

	S3BackupUrl             string `env:"S3_BACKUP_URL"`
	S3BackupBucket          string `env:"S3_BACKUP_BUCKET"`
	S3BackupAccessKeyId     string `env:"S3_BACKUP_ACCESS_KEY_ID"`
	S3BackupSecretAccessKey string `env:"S3_BACKUP_SECRET_ACCESS_KEY"`
	BackupDbPath            string `env:"BACKUP_DB_PATH"  envDefault:"retirement-watch-backup.db"`
	BackupSchedule          string `env:"BACKUP_SCHEDULE" envDefault:"30 9 * * MON"`

	Port        string `env:"PORT"         envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9091"`
	JobKey      string `env:"JOB_KEY"`

	AppEnv string `env:"APP_ENV" envDefault:"development"`
}

const (
	AppEnvDevelopment = "development"
	AppEnvProduction  = "production"
)

const (
	DefaultSchedule       = "0 9 * * MON"
	DefaultBackupSchedule = "30 9 * * MON"
	DefaultAlertHeading   = "Azure Retirement announcements"
	DefaultJiraIssueType  = "Service request"
	DefaultNtfyBaseUrl    = "https://ntfy.sh"
)

func (c *Config) ConnectionString() string {
	if c.TursoAuthToken == "" {
		return c.DbConnStr
	}
	return fmt.Sprintf("%s?authToken=%s", c.DbConnStr, c.TursoAuthToken)
}

func (c *Config) TicketingEnabled() bool {
	return c.JiraUrl != "" && c.JiraProjectId != "" && c.JiraUser != "" && c.JiraToken != ""
}

func (c *Config) BackupEnabled() bool {
	return c.S3BackupUrl != "" && c.S3BackupBucket != "" && c.S3BackupAccessKeyId != "" && c.S3BackupSecretAccessKey != ""
}

// NewConfig reads the process environment, optionally seeded from a .env file,
// and validates it. Every problem is reported in the returned error.
func NewConfig() (*Config, error) {
	godotenv.Load()
	return FromEnv(env.ToMap(os.Environ()))
}

// FromEnv parses environment into a Config and validates it.
func FromEnv(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	parseErr := env.ParseWithOptions(cfg, env.Options{Environment: environment})
	if err := errors.Join(parseErr, cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the rules that span several variables or bound a value.
func (c *Config) Validate() error {
	var errs []error
	if !c.SmtpTest {
		if c.SmtpHost == "" {
			errs = append(errs, errors.New("SMTP_HOST is required unless SMTP_TEST is set"))
		}
		if c.SmtpPort == "" {
			errs = append(errs, errors.New("SMTP_PORT is required unless SMTP_TEST is set"))
		}
	}
	if c.AppEnv != AppEnvDevelopment && c.AppEnv != AppEnvProduction {
		errs = append(errs, fmt.Errorf("failed to validate APP_ENV: invalid value %q", c.AppEnv))
	}
	jiraSet := 0
	for _, v := range []string{c.JiraUrl, c.JiraProjectId, c.JiraUser, c.JiraToken} {
		if v != "" {
			jiraSet++
		}
	}
	if jiraSet > 0 && jiraSet < 4 {
		errs = append(errs, errors.New("JIRA_URL, JIRA_PROJECT_ID, JIRA_USER and JIRA_TOKEN must be set together"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("RETRY_ATTEMPTS must be at least 1"))
	}
	for name, d := range map[string]time.Duration{"RUN_TIMEOUT": c.RunTimeout, "FETCH_TIMEOUT": c.FetchTimeout, "SEND_TIMEOUT": c.SendTimeout} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	return errors.Join(errs...)
}
