package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/metrics"
)

const (
	summaryPrefix   = "Service Retirement Announcement: "
	defaultPriority = "1"
	dueIn           = 7 * 24 * time.Hour
	dueDateLayout   = "2006-01-02"
)

type Client struct {
	cfg    *config.Config
	client *http.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
		now:    time.Now,
	}
}

type issueRequest struct {
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Project     keyRef  `json:"project"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	IssueType   nameRef `json:"issuetype"`
	Priority    idRef   `json:"priority"`
	DueDate     string  `json:"duedate"`
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

type idRef struct {
	Id string `json:"id"`
}

type issueResponse struct {
	Key string `json:"key"`
}

// CreateIssue opens a follow-up issue for entry and returns its key.
func (c *Client) CreateIssue(ctx context.Context, entry core.FeedEntry) (string, error) {
	payload, err := json.Marshal(c.newIssueRequest(entry))
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal issue: %v", core.ErrTicketFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.JiraUrl, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", core.ErrTicketFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.JiraUser, c.cfg.JiraToken)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.TicketErrorInc()
		return "", fmt.Errorf("%w: error posting issue for %v: %v", core.ErrTicketFailure, entry.Guid, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.TicketErrorInc()
		return "", fmt.Errorf("%w: error reading response: %v", core.ErrTicketFailure, err)
	}
	if resp.StatusCode != http.StatusCreated {
		metrics.TicketErrorInc()
		return "", fmt.Errorf("%w: got status code %v: %v", core.ErrTicketFailure, resp.StatusCode, string(body))
	}

	var issue issueResponse
	if err := json.Unmarshal(body, &issue); err != nil {
		metrics.TicketErrorInc()
		return "", fmt.Errorf("%w: failed to decode response: %v", core.ErrTicketFailure, err)
	}
	metrics.TicketCreatedInc()
	c.log.InfoContext(ctx, "Issue is created",
		"issueKey", issue.Key,
		"entryGuid", entry.Guid)
	return issue.Key, nil
}

func (c *Client) newIssueRequest(entry core.FeedEntry) issueRequest {
	return issueRequest{
		Fields: issueFields{
			Project:     keyRef{Key: c.cfg.JiraProjectId},
			Summary:     summaryPrefix + entry.Title,
			Description: fmt.Sprintf("Summary: %v\nLink: %v", textOf(entry.Summary), entry.Link),
			IssueType:   nameRef{Name: c.cfg.JiraIssueType},
			Priority:    idRef{Id: defaultPriority},
			DueDate:     c.now().Add(dueIn).Format(dueDateLayout),
		},
	}
}

// textOf flattens an html fragment to its text.
func textOf(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
