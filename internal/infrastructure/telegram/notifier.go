// Package telegram delivers drain alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TrendsScanner/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"

	// maxMessageRunes is the Bot API limit for sendMessage text.
	maxMessageRunes = 4096
	truncatedSuffix = "\n…(truncated)"
)

// ErrNotConfigured is returned by Notify when the token or chat is missing.
var ErrNotConfigured = errors.New("telegram: bot token and chat id are required")

// APIError is a sendMessage call the Bot API refused.
type APIError struct {
	Status      int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram: sendMessage returned %d", e.Status)
	}
	return fmt.Sprintf("telegram: sendMessage returned %d: %s", e.Status, e.Description)
}

type sendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notifier sends drain alerts to one chat.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Configured reports whether both token and chat are set.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// Notify posts message as plain text. Messages over the API limit are cut.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	if !n.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(sendMessage{
		ChatID:                n.chatID,
		Text:                  clip(message),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: encode message: %w", err)
	}

	endpoint := strings.TrimRight(n.apiBase, "/") + "/bot" + n.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// The token is part of the URL, so the transport error is not echoed.
		return fmt.Errorf("telegram: send to chat %s failed", n.chatID)
	}
	defer resp.Body.Close()

	var reply apiReply
	decodeErr := json.NewDecoder(resp.Body).Decode(&reply)
	if resp.StatusCode == http.StatusOK && decodeErr == nil && reply.OK {
		return nil
	}
	return &APIError{Status: resp.StatusCode, Description: reply.Description}
}

func clip(message string) string {
	runes := []rune(message)
	if len(runes) <= maxMessageRunes {
		return message
	}
	keep := maxMessageRunes - len([]rune(truncatedSuffix))
	return string(runes[:keep]) + truncatedSuffix
}
