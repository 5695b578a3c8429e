package mail

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
)

const NoUpdatesFragment = "<p><strong>No new retirement updates since last email.</strong></p>"

var announcementsTmpl = template.Must(template.New("announcements").Parse(
	`<html><body><h1>{{.Heading}}</h1>` +
		`{{range .Entries}}<p><strong>{{.Title}}</strong> - <a href="{{.Link}}">read more &raquo;</a></p>{{else}}` + NoUpdatesFragment + `{{end}}` +
		`</body></html>`,
))

type announcementsData struct {
	Heading string
	Entries []core.FeedEntry
}

// RenderAnnouncements renders one paragraph per entry, in order. Entries without a
// title or link are left out and reported as core.ErrMalformedEntry.
func RenderAnnouncements(heading string, entries []core.FeedEntry) (string, []error) {
	var skipped []error
	valid := make([]core.FeedEntry, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.Title) == "" || strings.TrimSpace(entry.Link) == "" {
			skipped = append(skipped, fmt.Errorf("entry %v (guid %q): %w", i, entry.Guid, core.ErrMalformedEntry))
			continue
		}
		valid = append(valid, entry)
	}
	var sb strings.Builder
	err := announcementsTmpl.Execute(&sb, announcementsData{Heading: heading, Entries: valid})
	if err != nil {
		// the template is static, execution only fails on writer errors
		panic(fmt.Sprintf("failed to render announcements: %v", err))
	}
	return sb.String(), skipped
}

func NewAnnouncementMessage(cfg *config.Config, entries []core.FeedEntry) (core.NotificationMessage, []error) {
	body, skipped := RenderAnnouncements(cfg.AlertHeading, entries)
	return core.NotificationMessage{
		Subject:   cfg.AlertSubject,
		HTMLBody:  body,
		Recipient: cfg.AlertRecipient,
		Sender:    cfg.AlertSender,
	}, skipped
}
