package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"NewsDigest/internal/ports"
)

// MaxMessageLength is the Bot API limit for one text message, in characters.
const MaxMessageLength = 4096

const defaultAPIURL = "https://api.telegram.org"

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *resty.Client
}

var _ ports.Publisher = (*Notifier)(nil)

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewNotifier registers bot token and chat identifier. apiURL may point at a Bot API proxy.
func NewNotifier(apiURL, botToken, chatID string, timeout time.Duration) *Notifier {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   resty.New().SetBaseURL(strings.TrimSuffix(apiURL, "/")).SetTimeout(timeout),
	}
}

func (n *Notifier) Name() string { return "telegram" }

// Publish posts the digest as one or more messages, split on line boundaries.
func (n *Notifier) Publish(ctx context.Context, document, dateKey string) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	for i, part := range SplitMessage(document, MaxMessageLength) {
		if err := n.send(ctx, part, "Markdown"); err != nil {
			// model output often breaks Markdown entities; resend as plain text
			if plainErr := n.send(ctx, part, ""); plainErr != nil {
				return fmt.Errorf("send part %d of %s digest: %w", i+1, dateKey, plainErr)
			}
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, text, parseMode string) error {
	form := map[string]string{
		"chat_id":                  n.chatID,
		"text":                     text,
		"disable_web_page_preview": "true",
	}
	if parseMode != "" {
		form["parse_mode"] = parseMode
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/bot" + n.botToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	var body apiResponse
	_ = json.Unmarshal([]byte(resp.String()), &body)
	if resp.StatusCode() != http.StatusOK || !body.OK {
		return fmt.Errorf("telegram error %d: %s", resp.StatusCode(), body.Description)
	}
	return nil
}

// SplitMessage cuts text into parts of at most limit characters, preferring line breaks.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		parts   []string
		current []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			parts = append(parts, s)
		}
		current = current[:0]
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if len(current)+len(runes) <= limit {
			current = append(current, runes...)
			continue
		}
		flush()
		for len(runes) > limit {
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		current = append(current, runes...)
	}
	flush()
	return parts
}
