// Package discord is the Discord app agent.
package discord

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"agentlink/internal/domain"
	"agentlink/internal/loader"
	discordclient "agentlink/internal/platform/discord"
)

//go:embed manifest.yaml
var manifestYAML []byte

const (
	notLoggedIn = "Use @discord login to log into Discord."
	noToken     = "No Discord bot token configured. Set channels.discord.token or DISCORD_BOT_TOKEN."
)

func Manifest() (domain.Manifest, error) {
	var m domain.Manifest
	if err := yaml.Unmarshal(manifestYAML, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("discord manifest: %w", err)
	}
	return m, nil
}

// Context is the per-session Discord state.
type Context struct {
	Client *discordclient.Client
}

type Options struct {
	Token   string
	GuildID string // used when an action names no guild
	Logger  *slog.Logger

	NewClient func(token string, logger *slog.Logger) (*discordclient.Client, error)
}

type Agent struct {
	opts     Options
	manifest domain.Manifest
	logger   *slog.Logger
}

var _ domain.AppAgent = (*Agent)(nil)

func New(opts Options) *Agent {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewClient == nil {
		opts.NewClient = discordclient.New
	}
	m, err := Manifest()
	if err != nil {
		opts.Logger.Error("load manifest", "err", err)
	}
	return &Agent{opts: opts, manifest: m, logger: opts.Logger.With("agent", "discord")}
}

// Instantiate builds the agent from loaded config.
func Instantiate(d loader.Deps) domain.AppAgent {
	return New(Options{
		Token:   d.Config.Channels.Discord.Token,
		GuildID: d.Config.Channels.Discord.GuildID,
		Logger:  d.Logger,
	})
}

func (a *Agent) Manifest() domain.Manifest { return a.manifest }

func (a *Agent) Commands() []domain.CommandInfo {
	return []domain.CommandInfo{{
		Name:        "login",
		Description: "Log the Discord bot into the gateway",
		Default:     true,
	}}
}

func (a *Agent) InitializeContext(ctx context.Context) (domain.AgentContext, error) {
	return &Context{}, nil
}

func (a *Agent) UpdateContext(ctx context.Context, enable bool, ac domain.AgentContext) error {
	dc, err := discordContext(ac)
	if err != nil {
		return err
	}
	if !enable {
		if dc.Client != nil {
			if err := dc.Client.Close(); err != nil {
				a.logger.Warn("close discord session", "err", err)
			}
		}
		dc.Client = nil
		return nil
	}
	if dc.Client != nil {
		if err := dc.Client.Close(); err != nil {
			a.logger.Warn("close previous discord session", "err", err)
		}
	}
	dc.Client = a.newClient()
	return nil
}

func (a *Agent) newClient() *discordclient.Client {
	if a.opts.Token == "" {
		a.logger.Warn("discord token not configured")
		return nil
	}
	c, err := a.opts.NewClient(a.opts.Token, a.logger)
	if err != nil {
		a.logger.Error("create discord client", "err", err)
		return nil
	}
	return c
}

func (a *Agent) ExecuteAction(ctx context.Context, action domain.Action, ac domain.AgentContext) (*domain.ActionResult, error) {
	dc, err := discordContext(ac)
	if err != nil {
		return nil, err
	}
	if !dc.Client.IsInitialized() {
		return domain.ResultFromError(notLoggedIn), nil
	}

	act, err := DecodeAction(action)
	if err != nil {
		if domain.IsFatal(err) {
			return nil, err
		}
		return domain.ResultFromError(err.Error()), nil
	}

	switch act := act.(type) {
	case SendMessageInDiscord:
		if !dc.Client.SendMessage(ctx, act.ChannelID, act.Message) {
			return domain.ResultFromError("Error encountered when sending message in Discord!"), nil
		}
		return domain.ResultFromHTML("<div>Message sent successfully in Discord...</div>"), nil

	case CreateChannelInDiscord:
		guildID := act.GuildID
		if guildID == "" {
			guildID = a.opts.GuildID
		}
		if guildID == "" {
			return domain.ResultFromError("Error: no guild given and channels.discord.guildId is not set"), nil
		}
		name := strings.TrimSpace(act.ChannelName)
		if name == "" {
			return domain.ResultFromError("Error: channel name is required"), nil
		}
		if !dc.Client.CreateChannel(ctx, guildID, name, act.IsPrivate) {
			return domain.ResultFromError("Error encountered when creating channel in Discord!"), nil
		}
		return domain.ResultFromHTML("<div>Channel created successfully in Discord...</div>"), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, action.Name)
}

func (a *Agent) ExecuteCommand(ctx context.Context, name string, args []string, ac domain.AgentContext) (*domain.ActionResult, error) {
	dc, err := discordContext(ac)
	if err != nil {
		return nil, err
	}
	if _, err := domain.ResolveCommand(a.Commands(), name); err != nil {
		return nil, err
	}

	if dc.Client == nil {
		dc.Client = a.newClient()
	}
	if dc.Client == nil {
		return domain.ResultFromError(noToken), nil
	}
	if err := dc.Client.Initialize(ctx); err != nil {
		return domain.ResultFromError("Discord login failed: " + err.Error()), nil
	}
	return domain.ResultFromHTML("<div>Logged into Discord.</div>"), nil
}

func discordContext(ac domain.AgentContext) (*Context, error) {
	dc, ok := ac.(*Context)
	if !ok || dc == nil {
		return nil, fmt.Errorf("%w: %T", domain.ErrBadContext, ac)
	}
	return dc, nil
}
