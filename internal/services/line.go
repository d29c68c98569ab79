package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	DefaultLineAPIEndpoint = "https://api.line.me"
	DefaultLineNotifyURL   = "https://notify-api.line.me/api/notify"

	// A broadcast request carries at most 5 message objects
	maxLineMessagesPerRequest = 5
	// Text messages are cut at 5000 characters
	maxLineTextLength = 5000
)

// LineNotifier sends scrape summaries to LINE. The Messaging API broadcast is used when a
// channel token is configured; LINE Notify is the fallback.
type LineNotifier struct {
	httpClient   *http.Client
	channelToken string
	notifyToken  string
	apiEndpoint  string
	notifyURL    string
}

// NewLineNotifier creates a notifier. Either token may be empty.
func NewLineNotifier(channelToken, notifyToken string) *LineNotifier {
	return &LineNotifier{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		channelToken: channelToken,
		notifyToken:  notifyToken,
		apiEndpoint:  DefaultLineAPIEndpoint,
		notifyURL:    DefaultLineNotifyURL,
	}
}

// SetEndpoints overrides the Messaging API base URL and the Notify URL
func (n *LineNotifier) SetEndpoints(apiEndpoint, notifyURL string) {
	n.apiEndpoint = apiEndpoint
	n.notifyURL = notifyURL
}

// Enabled reports whether any channel is configured
func (n *LineNotifier) Enabled() bool {
	return n.channelToken != "" || n.notifyToken != ""
}

// Send delivers the texts through the configured channel
func (n *LineNotifier) Send(ctx context.Context, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	switch {
	case n.channelToken != "":
		return n.Broadcast(ctx, texts)
	case n.notifyToken != "":
		return n.Notify(ctx, strings.Join(texts, "\n\n"))
	default:
		return fmt.Errorf("no LINE token configured")
	}
}

// Broadcast sends texts to every friend of the channel, five messages per request
func (n *LineNotifier) Broadcast(ctx context.Context, texts []string) error {
	bot, err := messaging_api.NewMessagingApiAPI(
		n.channelToken,
		messaging_api.WithHTTPClient(n.httpClient),
		messaging_api.WithEndpoint(n.apiEndpoint),
	)
	if err != nil {
		return fmt.Errorf("failed to create LINE client: %w", err)
	}

	for start := 0; start < len(texts); start += maxLineMessagesPerRequest {
		end := min(start+maxLineMessagesPerRequest, len(texts))

		req := &messaging_api.BroadcastRequest{}
		for _, text := range texts[start:end] {
			req.Messages = append(req.Messages, messaging_api.TextMessage{Text: truncateRunes(text, maxLineTextLength)})
		}

		if _, err := bot.WithContext(ctx).Broadcast(req, ""); err != nil {
			return fmt.Errorf("failed to broadcast messages %d-%d: %w", start+1, end, err)
		}
		log.Printf("LINE message sent successfully (messages %d-%d)", start+1, end)
	}
	return nil
}

// Notify posts one message through LINE Notify
func (n *LineNotifier) Notify(ctx context.Context, message string) error {
	form := url.Values{}
	form.Set("message", truncateRunes(message, maxLineTextLength))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create LINE Notify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+n.notifyToken)

	if err := n.do(httpReq); err != nil {
		return fmt.Errorf("failed to send LINE Notify message: %w", err)
	}
	return nil
}

func (n *LineNotifier) do(req *http.Request) error {
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("LINE API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
