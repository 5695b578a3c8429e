package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient(&config.Config{
		JiraUrl:       url,
		JiraProjectId: "OPS",
		JiraUser:      "bot@example.org",
		JiraToken:     "secret",
		JiraIssueType: config.DefaultJiraIssueType,
	}, slog.Default())
	c.now = func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) }
	return c
}

var testEntry = core.FeedEntry{
	Guid:    "c",
	Title:   "Service C",
	Link:    "https://example.org/c",
	Summary: "<p>Service C <b>retires</b></p>",
}

func TestCreateIssue(t *testing.T) {
	t.Parallel()

	var got issueRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@example.org", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"10001","key":"OPS-1"}`))
	}))
	defer server.Close()

	key, err := newTestClient(server.URL).CreateIssue(context.Background(), testEntry)
	require.NoError(t, err)
	assert.Equal(t, "OPS-1", key)

	assert.Equal(t, "OPS", got.Fields.Project.Key)
	assert.Equal(t, "Service Retirement Announcement: Service C", got.Fields.Summary)
	assert.Equal(t, "Summary: Service C retires\nLink: https://example.org/c", got.Fields.Description)
	assert.Equal(t, "Service request", got.Fields.IssueType.Name)
	assert.Equal(t, "1", got.Fields.Priority.Id)
	assert.Equal(t, "2024-01-22", got.Fields.DueDate)
}

func TestCreateIssueRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMessages":["project is required"]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateIssue(context.Background(), testEntry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTicketFailure))
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "project is required")
}
