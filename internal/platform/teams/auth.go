package teams

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Authenticator produces the token source Graph requests are signed with.
type Authenticator interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// LoginPage opens the device login page for the user. OpenLogin blocks
// until ctx is done.
type LoginPage interface {
	OpenLogin(ctx context.Context, url, userCode string) error
}

// StaticTokenAuth signs requests with a pre-issued bearer token.
type StaticTokenAuth struct {
	Token string
}

func (a StaticTokenAuth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if a.Token == "" {
		return nil, errors.New("teams: static token is empty")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.Token, TokenType: "Bearer"}), nil
}

// DeviceCodeConfig configures the OAuth2 device authorization grant.
type DeviceCodeConfig struct {
	TenantID string // defaults to "common"
	ClientID string
	Scopes   []string

	// Endpoint overrides the Azure AD endpoint derived from TenantID.
	Endpoint *oauth2.Endpoint

	Browser LoginPage // optional; opened alongside the printed prompt
	Prompt  io.Writer // defaults to os.Stderr
	Logger  *slog.Logger
}

// DeviceCodeAuth signs the user in with the device code flow.
type DeviceCodeAuth struct {
	oauth   *oauth2.Config
	browser LoginPage
	prompt  io.Writer
	logger  *slog.Logger
}

func NewDeviceCodeAuth(cfg DeviceCodeConfig) *DeviceCodeAuth {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	// Public client: no secret, so credentials go in the form body.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	prompt := cfg.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}
	return &DeviceCodeAuth{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoint,
			Scopes:   cfg.Scopes,
		},
		browser: cfg.Browser,
		prompt:  prompt,
		logger:  cfg.Logger,
	}
}

// TokenSource runs the device flow and blocks until the user completes it,
// the code expires, or ctx is done. The returned source refreshes itself.
func (a *DeviceCodeAuth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if a.oauth.ClientID == "" {
		return nil, errors.New("teams: client id is not configured")
	}

	da, err := a.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization: %w", err)
	}

	fmt.Fprintf(a.prompt, "To sign in to Microsoft Graph, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)

	loginCtx, stop := context.WithCancel(ctx)
	defer stop()
	if a.browser != nil {
		go func() {
			if err := a.browser.OpenLogin(loginCtx, da.VerificationURI, da.UserCode); err != nil {
				a.logger.Warn("could not open login page", "err", err)
			}
		}()
	}

	tok, err := a.oauth.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device token: %w", err)
	}
	a.logger.Info("microsoft graph sign-in complete")

	// Refreshes must outlive the login request.
	return a.oauth.TokenSource(context.WithoutCancel(ctx), tok), nil
}
