package feed

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/metrics"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/sethvargo/go-retry"
)

const (
	userAgent        = "retirement-watch/1.0 (+https://github.com/bjarke-xyz/retirement-watch)"
	maxBodyBytes     = 10 << 20
	maxLoggedBodyLen = 512
)

type Options struct {
	Timeout       time.Duration
	RetryAttempts uint64
	RetryBase     time.Duration
}

type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
	opts   Options
	log    *slog.Logger
}

func NewFetcher(opts Options, log *slog.Logger) *Fetcher {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: opts.Timeout},
		parser: gofeed.NewParser(),
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
		opts:   opts,
		log:    log,
	}
}

// Fetch downloads and parses the feed at feedUrl. Transport errors and 5xx
// responses are retried with exponential backoff; everything else fails at once.
// Returned errors wrap core.ErrFeedUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, feedUrl string) ([]core.FeedEntry, error) {
	var body []byte
	attempt := 0
	backoff := retry.WithMaxRetries(f.opts.RetryAttempts-1, retry.NewExponential(f.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, err := f.get(ctx, feedUrl)
		if err != nil {
			f.log.WarnContext(ctx, "Feed fetch attempt failed",
				"error", err,
				"feedUrl", feedUrl,
				"attempt", attempt)
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %v after %v attempts: %v", core.ErrFeedUnavailable, feedUrl, attempt, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %v: %v", core.ErrFeedUnavailable, feedUrl, err)
	}

	entries := make([]core.FeedEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, f.convertToEntry(item))
	}
	f.log.InfoContext(ctx, "Feed is fetched",
		"feedUrl", feedUrl,
		"entryCount", len(entries),
		"attempts", attempt)
	return entries, nil
}

func (f *Fetcher) get(ctx context.Context, feedUrl string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, retry.RetryableError(fmt.Errorf("error getting %v: %w", feedUrl, err))
	}
	defer resp.Body.Close()
	metrics.FeedFetchStatusInc(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("error reading body of %v: %w", feedUrl, err))
	}
	if resp.StatusCode > 299 {
		statusErr := fmt.Errorf("error getting %v, returned status code %v: %v", feedUrl, resp.StatusCode, truncate(string(body), maxLoggedBodyLen))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.RetryableError(statusErr)
		}
		return nil, statusErr
	}
	return body, nil
}

func (f *Fetcher) convertToEntry(item *gofeed.Item) core.FeedEntry {
	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = strings.TrimSpace(item.Link)
	}
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	return core.FeedEntry{
		Guid:      guid,
		Title:     strings.TrimSpace(html.UnescapeString(f.strict.Sanitize(item.Title))),
		Link:      strings.TrimSpace(item.Link),
		Summary:   strings.TrimSpace(f.ugc.Sanitize(summary)),
		Published: strings.TrimSpace(item.Published),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
