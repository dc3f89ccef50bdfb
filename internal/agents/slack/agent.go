// Package slack is the Slack app agent. It sends messages to channels
// looked up by friendly name and creates channels.
package slack

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"agentlink/internal/domain"
	"agentlink/internal/loader"
	slackclient "agentlink/internal/platform/slack"
)

//go:embed manifest.yaml
var manifestYAML []byte

const notLoggedIn = "Use @slack login to log into Slack."

// Manifest returns the embedded agent manifest.
func Manifest() (domain.Manifest, error) {
	var m domain.Manifest
	if err := yaml.Unmarshal(manifestYAML, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("slack manifest: %w", err)
	}
	return m, nil
}

// Context is the per-session Slack state. Client is nil until the agent
// is enabled.
type Context struct {
	Client *slackclient.Client
}

// Options configures the agent.
type Options struct {
	Token  string
	Logger *slog.Logger

	// NewClient builds the client when the agent is enabled. Defaults to
	// the Slack Web API client.
	NewClient func(token string, logger *slog.Logger) *slackclient.Client
}

// Agent implements domain.AppAgent for Slack.
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
		opts.NewClient = slackclient.New
	}
	m, err := Manifest()
	if err != nil {
		opts.Logger.Error("load manifest", "err", err)
	}
	return &Agent{opts: opts, manifest: m, logger: opts.Logger.With("agent", "slack")}
}

// Instantiate builds the agent from loaded config.
func Instantiate(d loader.Deps) domain.AppAgent {
	return New(Options{Token: d.Config.Channels.Slack.BotToken, Logger: d.Logger})
}

func (a *Agent) Manifest() domain.Manifest { return a.manifest }

func (a *Agent) Commands() []domain.CommandInfo {
	return []domain.CommandInfo{{
		Name:        "login",
		Description: "Log into Slack to access workspace channels and messages",
		Default:     true,
	}}
}

func (a *Agent) InitializeContext(ctx context.Context) (domain.AgentContext, error) {
	return &Context{}, nil
}

func (a *Agent) UpdateContext(ctx context.Context, enable bool, ac domain.AgentContext) error {
	sc, err := slackContext(ac)
	if err != nil {
		return err
	}
	if enable {
		sc.Client = a.opts.NewClient(a.opts.Token, a.logger)
	} else {
		sc.Client = nil
	}
	return nil
}

func (a *Agent) ExecuteAction(ctx context.Context, action domain.Action, ac domain.AgentContext) (*domain.ActionResult, error) {
	sc, err := slackContext(ac)
	if err != nil {
		return nil, err
	}
	if !sc.Client.IsInitialized() {
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
	case SendMessageInSlack:
		return a.sendMessage(ctx, sc.Client, act), nil
	case CreateChannelInSlack:
		return a.createChannel(ctx, sc.Client, act), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, action.Name)
}

func (a *Agent) sendMessage(ctx context.Context, c *slackclient.Client, act SendMessageInSlack) *domain.ActionResult {
	a.logger.Info("handling send message", "channel", act.ChannelName)

	channelID := c.FindChannelIDByName(ctx, act.ChannelName)
	if channelID == "" {
		return domain.ResultFromError("Error: Channel not found for name: " + act.ChannelName)
	}
	if !c.SendMessage(ctx, channelID, act.Message, act.Attachments) {
		return domain.ResultFromError("Error encountered when sending message in Slack!")
	}
	return domain.ResultFromHTML("<div>Message sent successfully in Slack...</div>")
}

func (a *Agent) createChannel(ctx context.Context, c *slackclient.Client, act CreateChannelInSlack) *domain.ActionResult {
	a.logger.Info("handling create channel", "channel", act.ChannelName, "private", act.IsPrivate)

	if !c.CreateChannel(ctx, act.ChannelName, act.IsPrivate) {
		return domain.ResultFromError("Error encountered when creating channel!")
	}
	return domain.ResultFromHTML("<div>Channel created successfully...</div>")
}

func (a *Agent) ExecuteCommand(ctx context.Context, name string, args []string, ac domain.AgentContext) (*domain.ActionResult, error) {
	sc, err := slackContext(ac)
	if err != nil {
		return nil, err
	}
	if _, err := domain.ResolveCommand(a.Commands(), name); err != nil {
		return nil, err
	}

	// login
	if sc.Client == nil {
		sc.Client = a.opts.NewClient(a.opts.Token, a.logger)
	}
	if !sc.Client.IsInitialized() {
		return domain.ResultFromError("No Slack bot token configured. Set channels.slack.botToken or SLACK_BOT_TOKEN."), nil
	}
	if err := sc.Client.Initialize(ctx, true); err != nil {
		return domain.ResultFromError("Slack login failed: " + err.Error()), nil
	}
	return domain.ResultFromHTML("<div>Logged into Slack.</div>"), nil
}

func slackContext(ac domain.AgentContext) (*Context, error) {
	sc, ok := ac.(*Context)
	if !ok || sc == nil {
		return nil, fmt.Errorf("%w: %T", domain.ErrBadContext, ac)
	}
	return sc, nil
}
