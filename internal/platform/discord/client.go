// Package discord is the Discord platform client: bot login, message send to
// a channel ID and text channel creation in a guild.
package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Client wraps one bot session.
type Client struct {
	session Session
	logger  *slog.Logger

	mu   sync.Mutex
	open bool
}

// New creates a client for a bot token. The gateway is not opened until
// Initialize.
func New(token string, logger *slog.Logger) (*Client, error) {
	s, err := NewSession(token)
	if err != nil {
		return nil, err
	}
	return NewWithSession(s, logger), nil
}

// NewWithSession creates a client over a caller-supplied session.
func NewWithSession(s Session, logger *slog.Logger) *Client {
	return &Client{session: s, logger: logger}
}

// IsInitialized reports whether a session handle is present.
func (c *Client) IsInitialized() bool {
	return c != nil && c.session != nil
}

// IsOpen reports whether the gateway is connected.
func (c *Client) IsOpen() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Initialize logs the bot in by opening the gateway. It is a no-op while
// the gateway is already open.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}
	if err := c.session.Open(); err != nil {
		c.logger.Error("discord login failed", "err", err)
		return err
	}
	c.open = true
	c.logger.Info("discord client logged in")
	return nil
}

// Close shuts the gateway connection. A later Initialize reopens it.
func (c *Client) Close() error {
	if !c.IsInitialized() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return c.session.Close()
}

// SendMessage posts text to a channel the bot can see.
func (c *Client) SendMessage(ctx context.Context, channelID, text string) bool {
	ch, err := c.session.Channel(ctx, channelID)
	if err != nil || ch == nil {
		c.logger.Error("discord channel not found", "channel", channelID, "err", err)
		return false
	}

	if _, err := c.session.ChannelMessageSend(ctx, ch.ID, text); err != nil {
		c.logger.Error("discord send failed", "channel", channelID, "err", err)
		return false
	}
	c.logger.Info("discord message sent", "channel", channelID)
	return true
}

// CreateChannel creates a text channel in a guild. A private channel hides
// itself from the guild's default role.
func (c *Client) CreateChannel(ctx context.Context, guildID, name string, isPrivate bool) bool {
	guild, err := c.session.Guild(ctx, guildID)
	if err != nil || guild == nil {
		c.logger.Error("discord guild not found", "guild", guildID, "err", err)
		return false
	}

	data := discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildText,
	}
	if isPrivate {
		// @everyone shares the guild's ID.
		data.PermissionOverwrites = []*discordgo.PermissionOverwrite{{
			ID:   guild.ID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		}}
	}

	if _, err := c.session.GuildChannelCreateComplex(ctx, guild.ID, data); err != nil {
		c.logger.Error("discord create channel failed", "guild", guildID, "name", name, "err", err)
		return false
	}
	c.logger.Info("discord channel created", "guild", guildID, "name", name, "private", isPrivate)
	return true
}
