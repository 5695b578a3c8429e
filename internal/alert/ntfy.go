package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/config"
)

type Ntfy struct {
	baseUrl string
	topic   string
	client  *http.Client
	log     *slog.Logger
}

func NewNtfy(cfg *config.Config, log *slog.Logger) *Ntfy {
	baseUrl := strings.TrimRight(cfg.NtfyBaseUrl, "/")
	if baseUrl == "" {
		baseUrl = config.DefaultNtfyBaseUrl
	}
	return &Ntfy{
		baseUrl: baseUrl,
		topic:   cfg.NtfyTopic,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Notify posts msg to the configured topic. Does nothing when no topic is set.
func (n *Ntfy) Notify(ctx context.Context, msg string) error {
	if n.topic == "" {
		n.log.DebugContext(ctx, "NTFY_TOPIC is not set, skipping alert", "message", msg)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseUrl+"/"+n.topic, strings.NewReader(msg))
	if err != nil {
		return fmt.Errorf("failed to create ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to ntfy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got non-200 status code from ntfy: %v", resp.StatusCode)
	}
	return nil
}
