// Package slack is the Slack platform client: auth check, channel lookup by
// friendly name, message send and channel creation over the Slack Web API.
package slack

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

// maxChannelNameLen is Slack's limit for conversation names.
const maxChannelNameLen = 80

var invalidChannelChars = regexp.MustCompile(`[^a-z0-9\-_]`)

// Client wraps one Slack bot token and the API it authenticates.
type Client struct {
	token  string
	api    API
	logger *slog.Logger
}

// New creates a client for token backed by the Slack Web API.
// An empty token yields a client that fails every call.
func New(token string, logger *slog.Logger) *Client {
	return NewWithAPI(token, NewAPI(token), logger)
}

// NewWithAPI creates a client over a caller-supplied API.
func NewWithAPI(token string, api API, logger *slog.Logger) *Client {
	return &Client{token: token, api: api, logger: logger}
}

// IsInitialized reports whether a token is held. It does not contact Slack.
func (c *Client) IsInitialized() bool {
	return c != nil && c.token != ""
}

// Initialize verifies the token with auth.test. With retry set, a failed
// check is attempted exactly once more.
func (c *Client) Initialize(ctx context.Context, retry bool) error {
	err := c.api.AuthTest(ctx)
	if err == nil {
		c.logger.Info("slack client authenticated")
		return nil
	}
	c.logger.Error("slack authentication failed", "err", err)
	if !retry {
		return err
	}
	return c.Initialize(ctx, false)
}

// FindChannelIDByName returns the ID of the first listed channel whose name
// contains the sanitized friendly name, or "" if none does.
func (c *Client) FindChannelIDByName(ctx context.Context, friendlyName string) string {
	name, ok := SanitizeChannelName(friendlyName)
	if !ok {
		c.logger.Error("invalid channel name", "name", friendlyName)
		return ""
	}

	channels, err := c.api.ListConversations(ctx)
	if err != nil {
		c.logger.Error("slack list conversations failed", "err", err)
		return ""
	}

	for _, ch := range channels {
		if ch.ID == "" {
			continue
		}
		if strings.Contains(ch.Name, name) || strings.Contains(ch.NameNormalized, name) {
			c.logger.Info("slack channel resolved", "name", name, "channel_id", ch.ID)
			return ch.ID
		}
	}
	c.logger.Warn("no slack channel matches", "name", name)
	return ""
}

// SendMessage posts text (and optional attachments) to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, text string, attachments []slack.Attachment) bool {
	if err := c.api.PostMessage(ctx, channelID, text, attachments); err != nil {
		c.logger.Error("slack send failed", "channel", channelID, "err", err)
		return false
	}
	c.logger.Info("slack message sent", "channel", channelID)
	return true
}

// CreateChannel creates a conversation named after the sanitized name.
// Invalid names are rejected without calling Slack.
func (c *Client) CreateChannel(ctx context.Context, channelName string, isPrivate bool) bool {
	name, ok := SanitizeChannelName(channelName)
	if !ok {
		c.logger.Error("invalid channel name", "name", channelName)
		return false
	}

	if err := c.api.CreateConversation(ctx, name, isPrivate); err != nil {
		c.logger.Error("slack create channel failed", "name", name, "err", err)
		return false
	}
	c.logger.Info("slack channel created", "name", name, "private", isPrivate)
	return true
}

// SanitizeChannelName lower-cases name and strips characters outside
// [a-z0-9-_]. It reports false when the result is empty or over 80 chars.
func SanitizeChannelName(name string) (string, bool) {
	sanitized := invalidChannelChars.ReplaceAllString(strings.ToLower(name), "")
	if len(sanitized) < 1 || len(sanitized) > maxChannelNameLen {
		return "", false
	}
	return sanitized, true
}
