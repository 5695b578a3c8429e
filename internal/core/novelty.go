package core

import (
	"fmt"
	"strings"
	"time"
)

// PublishedLayout matches RSS pubDate values such as
// "Wed, 10 Jan 2024 15:04:05 +0000" and "Fri, 01 Sep 1999 00:00:00 Z".
const PublishedLayout = "Mon, _2 Jan 2006 15:04:05 Z0700"

// publishedColonLayout accepts offsets written as "+00:00".
const publishedColonLayout = "Mon, _2 Jan 2006 15:04:05 Z07:00"

// ParsePublished parses a feed or watermark timestamp. Failures wrap ErrMalformedTimestamp.
func ParsePublished(published string) (time.Time, error) {
	value := strings.TrimSpace(published)
	t, err := time.Parse(PublishedLayout, value)
	if err == nil {
		return t, nil
	}
	t, colonErr := time.Parse(publishedColonLayout, value)
	if colonErr == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, published, err)
}

// DetectNovel returns the entries published strictly after the watermark, in feed order.
// When there are novel entries the returned watermark carries the published value and guid
// of the first one, otherwise it is nil.
func DetectNovel(watermark Watermark, entries []FeedEntry) ([]FeedEntry, *Watermark, error) {
	lastSeen, err := watermark.PublishedAt()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse watermark: %w", err)
	}
	novel := make([]FeedEntry, 0)
	for _, entry := range entries {
		published, err := entry.PublishedAt()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse entry %q: %w", entry.Guid, err)
		}
		if published.After(lastSeen) {
			novel = append(novel, entry)
		}
	}
	if len(novel) == 0 {
		return novel, nil, nil
	}
	updated := watermark
	updated.Published = novel[0].Published
	updated.Guid = novel[0].Guid
	return novel, &updated, nil
}

// IsNewestFirst reports whether no entry is newer than the one before it.
// Entries with unparsable timestamps are ignored.
func IsNewestFirst(entries []FeedEntry) bool {
	var prev time.Time
	for i, entry := range entries {
		published, err := entry.PublishedAt()
		if err != nil {
			continue
		}
		if i > 0 && !prev.IsZero() && published.After(prev) {
			return false
		}
		prev = published
	}
	return true
}
