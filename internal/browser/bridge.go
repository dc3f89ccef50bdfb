// Package browser opens a visible Chrome window for interactive sign-in.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// codeInput is the user code field on the Microsoft device login page.
const codeInput = "#otc"

// Bridge launches Chrome with a persistent profile.
type Bridge struct {
	profileDir string
	logger     *slog.Logger
}

// BridgeConfig holds configuration for the browser bridge.
type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = DefaultProfileDir()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		logger:     cfg.Logger,
	}
}

// DefaultProfileDir is ~/.agentlink/chrome-profile.
func DefaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agentlink", "chrome-profile")
	}
	return filepath.Join(home, ".agentlink", "chrome-profile")
}

// ProfileDir returns the Chrome user data directory in use.
func (b *Bridge) ProfileDir() string { return b.profileDir }

func (b *Bridge) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
}

// OpenLogin opens url in a visible browser and, when userCode is set,
// pre-fills it into the device login form. It blocks until ctx is done,
// which closes the window.
func (b *Bridge) OpenLogin(ctx context.Context, url, userCode string) error {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	b.logger.Info("opening browser for login", "url", url)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	if userCode != "" {
		err := chromedp.Run(taskCtx,
			chromedp.WaitVisible(codeInput, chromedp.ByQuery),
			chromedp.SendKeys(codeInput, userCode, chromedp.ByQuery),
		)
		if err != nil && ctx.Err() == nil {
			b.logger.Warn("could not pre-fill login code", "err", err)
		}
	}

	<-ctx.Done()
	b.logger.Info("login window closed", "profile", b.profileDir)
	return nil
}
