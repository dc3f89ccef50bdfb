package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Session is the narrow slice of a discordgo session the client depends on.
type Session interface {
	Open() error
	Close() error
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	ChannelMessageSend(ctx context.Context, channelID, content string) (*discordgo.Message, error)
	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	GuildChannelCreateComplex(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
}

// gatewaySession adapts *discordgo.Session to Session.
type gatewaySession struct {
	s *discordgo.Session
}

// NewSession creates a bot session for token. No connection is made until Open.
func NewSession(token string) (Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	return &gatewaySession{s: s}, nil
}

func (g *gatewaySession) Open() error  { return g.s.Open() }
func (g *gatewaySession) Close() error { return g.s.Close() }

func (g *gatewaySession) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	return g.s.Channel(channelID, discordgo.WithContext(ctx))
}

func (g *gatewaySession) ChannelMessageSend(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	return g.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
}

func (g *gatewaySession) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	return g.s.Guild(guildID, discordgo.WithContext(ctx))
}

func (g *gatewaySession) GuildChannelCreateComplex(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return g.s.GuildChannelCreateComplex(guildID, data, discordgo.WithContext(ctx))
}
