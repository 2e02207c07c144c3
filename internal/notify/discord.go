package notify

import (
	"context"
	"fmt"
	"net/http"
)

// discordContentLimit is the maximum length of a webhook message body.
const discordContentLimit = 2000

// DiscordSender posts alerts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender returns nil when webhookURL is empty.
func NewDiscordSender(webhookURL string) *DiscordSender {
	if webhookURL == "" {
		return nil
	}
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient()}
}

// Send posts the alert with a bold title. Long messages are truncated.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := truncate(fmt.Sprintf("**%s**\n%s", title, message), discordContentLimit)
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{
		"content":  content,
		"username": "arbagent",
	})
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
