// Package teams is the Microsoft Teams app agent. It resolves recipients by
// name, finds or creates the matching chat and posts the message.
package teams

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"agentlink/internal/browser"
	"agentlink/internal/config"
	"agentlink/internal/domain"
	"agentlink/internal/loader"
	teamsclient "agentlink/internal/platform/teams"
)

//go:embed manifest.yaml
var manifestYAML []byte

const notLoggedIn = "Use @teams login to log into MS Graph."

func Manifest() (domain.Manifest, error) {
	var m domain.Manifest
	if err := yaml.Unmarshal(manifestYAML, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("teams manifest: %w", err)
	}
	return m, nil
}

// Context is the per-session Teams state. CallerID is fetched on the first
// action and reused afterwards.
type Context struct {
	Client   *teamsclient.Client
	CallerID string
}

type Options struct {
	Teams  config.TeamsConfig
	Logger *slog.Logger

	// NewClient builds a client that is not yet logged in.
	NewClient func() *teamsclient.Client
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
	logger := opts.Logger.With("agent", "teams")
	if opts.NewClient == nil {
		cfg := opts.Teams
		opts.NewClient = func() *teamsclient.Client { return NewClient(cfg, logger) }
	}
	m, err := Manifest()
	if err != nil {
		logger.Error("load manifest", "err", err)
	}
	return &Agent{opts: opts, manifest: m, logger: logger}
}

// NewClient builds a Graph client from config. A configured token is used
// as is; otherwise the user signs in with the device code flow.
func NewClient(cfg config.TeamsConfig, logger *slog.Logger) *teamsclient.Client {
	var auth teamsclient.Authenticator
	if cfg.Token != "" {
		auth = teamsclient.StaticTokenAuth{Token: cfg.Token}
	} else {
		dc := teamsclient.DeviceCodeConfig{
			TenantID: cfg.TenantID,
			ClientID: cfg.ClientID,
			Scopes:   cfg.Scopes,
			Logger:   logger,
		}
		if cfg.BrowserLogin {
			dc.Browser = browser.NewBridge(browser.BridgeConfig{ProfileDir: cfg.ProfileDir, Logger: logger})
		}
		auth = teamsclient.NewDeviceCodeAuth(dc)
	}
	return teamsclient.New(teamsclient.Config{
		Auth:    auth,
		BaseURL: cfg.GraphBaseURL,
		Retries: cfg.GraphRetries,
		Logger:  logger,
	})
}

// Instantiate builds the agent from loaded config.
func Instantiate(d loader.Deps) domain.AppAgent {
	return New(Options{Teams: d.Config.Channels.Teams, Logger: d.Logger})
}

func (a *Agent) Manifest() domain.Manifest { return a.manifest }

func (a *Agent) Commands() []domain.CommandInfo {
	return []domain.CommandInfo{{
		Name:        "login",
		Description: "Log into MS Graph to access Teams",
		Default:     true,
	}}
}

func (a *Agent) InitializeContext(ctx context.Context) (domain.AgentContext, error) {
	return &Context{Client: a.opts.NewClient()}, nil
}

func (a *Agent) UpdateContext(ctx context.Context, enable bool, ac domain.AgentContext) error {
	tc, err := teamsContext(ac)
	if err != nil {
		return err
	}
	tc.CallerID = ""
	if enable {
		tc.Client = a.opts.NewClient()
	} else {
		tc.Client = nil
	}
	return nil
}

func (a *Agent) ExecuteAction(ctx context.Context, action domain.Action, ac domain.AgentContext) (*domain.ActionResult, error) {
	tc, err := teamsContext(ac)
	if err != nil {
		return nil, err
	}
	if !tc.Client.IsInitialized() {
		return domain.ResultFromError(notLoggedIn), nil
	}

	if tc.CallerID == "" {
		id := tc.Client.CallerID(ctx)
		if id == "" {
			return domain.ResultFromError("Unable to retrieve caller ID."), nil
		}
		tc.CallerID = id
	}

	act, err := DecodeAction(action)
	if err != nil {
		if domain.IsFatal(err) {
			return nil, err
		}
		return domain.ResultFromError(err.Error()), nil
	}

	switch act := act.(type) {
	case SendMessage:
		return a.sendMessage(ctx, tc, act), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, action.Name)
}

func (a *Agent) sendMessage(ctx context.Context, tc *Context, act SendMessage) *domain.ActionResult {
	userIDs := tc.Client.FindUserIDsByNames(ctx, act.Recipients)
	if len(userIDs) == 0 {
		return domain.ResultFromError("No valid users found for conversation.")
	}

	var chatID string
	if len(userIDs) > 1 {
		chatID = tc.Client.CreateOrFindGroupChat(ctx, tc.CallerID, userIDs)
	} else {
		chatID = tc.Client.CreateOrFindOneOnOneChat(ctx, tc.CallerID, userIDs[0])
	}
	if chatID == "" {
		return domain.ResultFromError("Failed to create or retrieve chat with specified users.")
	}

	if !tc.Client.SendMessage(ctx, []string{chatID}, act.Message, act.Attachments) {
		return domain.ResultFromError("Error sending message in Teams.")
	}
	return domain.ResultFromHTML("<div>Message sent successfully in Teams.</div>")
}

func (a *Agent) ExecuteCommand(ctx context.Context, name string, args []string, ac domain.AgentContext) (*domain.ActionResult, error) {
	tc, err := teamsContext(ac)
	if err != nil {
		return nil, err
	}
	if _, err := domain.ResolveCommand(a.Commands(), name); err != nil {
		return nil, err
	}

	if tc.Client == nil {
		tc.Client = a.opts.NewClient()
	}
	if tc.Client.IsInitialized() {
		return domain.ResultFromHTML("<div>Already logged into MS Graph.</div>"), nil
	}
	if err := tc.Client.Initialize(ctx, true); err != nil {
		return domain.ResultFromError("MS Graph login failed: " + err.Error()), nil
	}
	return domain.ResultFromHTML("<div>Logged into MS Graph.</div>"), nil
}

func teamsContext(ac domain.AgentContext) (*Context, error) {
	tc, ok := ac.(*Context)
	if !ok || tc == nil {
		return nil, fmt.Errorf("%w: %T", domain.ErrBadContext, ac)
	}
	return tc, nil
}
