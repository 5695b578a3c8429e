package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv() map[string]string {
	return map[string]string{
		"FEED_URL":                "https://azure.microsoft.com/en-us/updates/feed/",
		"DB_CONN_STR":             "watch.db",
		"WATERMARK_TABLE":         "RssFeed",
		"WATERMARK_PARTITION_KEY": "retirements",
		"WATERMARK_ROW_KEY":       "latest",
		"SMTP_HOST":               "smtp.example.org",
		"SMTP_PORT":               "587",
		"ALERT_RECIPIENT":         "ops@example.org",
		"ALERT_SUBJECT":           "Retirement announcements",
		"ALERT_SENDER":            "noreply@example.org",
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(validEnv())
	require.NoError(t, err)

	assert.Equal(t, DefaultSchedule, cfg.Schedule)
	assert.Equal(t, DefaultAlertHeading, cfg.AlertHeading)
	assert.Equal(t, AppEnvDevelopment, cfg.AppEnv)
	assert.True(t, cfg.RunOnStartup)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, uint64(3), cfg.RetryAttempts)
	assert.False(t, cfg.TicketingEnabled())
	assert.False(t, cfg.BackupEnabled())
	assert.Equal(t, "watch.db", cfg.ConnectionString())
}

func TestFromEnvReportsEveryMissingVariable(t *testing.T) {
	t.Parallel()

	_, err := FromEnv(map[string]string{})
	require.Error(t, err)

	for _, name := range []string{
		"FEED_URL", "DB_CONN_STR", "WATERMARK_TABLE", "WATERMARK_PARTITION_KEY",
		"WATERMARK_ROW_KEY", "ALERT_RECIPIENT", "ALERT_SUBJECT", "ALERT_SENDER",
		"SMTP_HOST", "SMTP_PORT",
	} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestFromEnvSmtpTestSkipsSmtpHost(t *testing.T) {
	t.Parallel()

	env := validEnv()
	delete(env, "SMTP_HOST")
	delete(env, "SMTP_PORT")
	env["SMTP_TEST"] = "true"

	cfg, err := FromEnv(env)
	require.NoError(t, err)
	assert.True(t, cfg.SmtpTest)
}

func TestFromEnvInvalidValues(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		key   string
		value string
	}{
		{"APP_ENV", "staging"},
		{"FETCH_TIMEOUT", "soon"},
		{"SEND_TIMEOUT", "-1s"},
		{"RUN_ON_STARTUP", "maybe"},
		{"RETRY_ATTEMPTS", "0"},
		{"RETRY_ATTEMPTS", "three"},
		{"FEED_URL", ""},
		{"JIRA_URL", "https://jira.example.org/rest/api/2/issue"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			env := validEnv()
			env[tt.key] = tt.value
			_, err := FromEnv(env)
			assert.Error(t, err)
		})
	}
}

func TestConnectionStringWithTursoToken(t *testing.T) {
	t.Parallel()

	env := validEnv()
	env["DB_CONN_STR"] = "libsql://watch.turso.io"
	env["TURSO_AUTH_TOKEN"] = "secret"

	cfg, err := FromEnv(env)
	require.NoError(t, err)
	assert.Equal(t, "libsql://watch.turso.io?authToken=secret", cfg.ConnectionString())
}

func TestTicketingEnabled(t *testing.T) {
	t.Parallel()

	env := validEnv()
	env["JIRA_URL"] = "https://jira.example.org/rest/api/2/issue"
	env["JIRA_PROJECT_ID"] = "OPS"
	env["JIRA_USER"] = "bot"
	env["JIRA_TOKEN"] = "token"

	cfg, err := FromEnv(env)
	require.NoError(t, err)
	assert.True(t, cfg.TicketingEnabled())
	assert.Equal(t, DefaultJiraIssueType, cfg.JiraIssueType)
}

func TestFromEnvParsesTypedValues(t *testing.T) {
	t.Parallel()

	env := validEnv()
	env["RUN_TIMEOUT"] = "90s"
	env["RETRY_ATTEMPTS"] = "5"
	env["RUN_ON_STARTUP"] = "false"
	env["SMTP_TEST"] = "true"
	env["APP_ENV"] = AppEnvProduction

	cfg, err := FromEnv(env)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.RunTimeout)
	assert.Equal(t, uint64(5), cfg.RetryAttempts)
	assert.False(t, cfg.RunOnStartup)
	assert.True(t, cfg.SmtpTest)
	assert.Equal(t, AppEnvProduction, cfg.AppEnv)
}
