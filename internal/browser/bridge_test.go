package browser

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chromedp/chromedp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewBridge_DefaultProfile(t *testing.T) {
	b := NewBridge(BridgeConfig{Logger: testLogger()})
	if !strings.HasSuffix(b.ProfileDir(), filepath.Join(".agentlink", "chrome-profile")) {
		t.Fatalf("unexpected default profile dir %q", b.ProfileDir())
	}
}

func TestNewBridge_CustomProfile(t *testing.T) {
	dir := t.TempDir()
	b := NewBridge(BridgeConfig{ProfileDir: dir, Logger: testLogger()})
	if b.ProfileDir() != dir {
		t.Fatalf("expected %q, got %q", dir, b.ProfileDir())
	}
	if n := len(b.allocatorOptions()); n <= len(chromedp.DefaultExecAllocatorOptions) {
		t.Fatalf("expected extra allocator options, got %d", n)
	}
}
