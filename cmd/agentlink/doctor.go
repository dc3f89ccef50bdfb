package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agentlink/internal/audit"
	"agentlink/internal/config"
	"agentlink/internal/wsbridge"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the agentlink setup",
		Long: `Verifies the configuration, platform credentials, audit database and
WebSocket endpoint. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("agentlink doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s (using defaults)", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			credential := func(check, value, hint string) {
				if value == "" {
					r.warn(check, "not configured ("+hint+")")
				} else {
					r.pass(check, "configured")
				}
			}
			credential("Slack token", cfg.Channels.Slack.BotToken, "channels.slack.botToken or SLACK_BOT_TOKEN")
			credential("Discord token", cfg.Channels.Discord.Token, "channels.discord.token or DISCORD_BOT_TOKEN")
			if cfg.Channels.Teams.Token == "" && cfg.Channels.Teams.ClientID == "" {
				r.warn("Teams auth", "no token and no clientId for device login")
			} else {
				r.pass("Teams auth", "configured")
			}

			if cfg.Audit.Enabled {
				names := make([]string, 0, len(cfg.Agents.Entries))
				for name := range cfg.Agents.Entries {
					names = append(names, name)
				}
				if detail, err := checkAudit(cfg.Audit.DBPath, names); err != nil {
					r.fail("Audit database", err.Error())
				} else {
					r.pass("Audit database", detail)
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if sock := wsbridge.Dial(ctx, cfg.WebSocket.URL, logger); sock != nil {
				sock.Close()
				r.pass("WebSocket", cfg.WebSocket.URL)
			} else {
				r.warn("WebSocket", "cannot reach "+cfg.WebSocket.URL)
			}

			return r.summary()
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *report) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *report) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func (r *report) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkAudit opens the store, which runs migrations, and reads it back.
// The detail lists outcome counts for each agent that has entries.
func checkAudit(dbPath string, agents []string) (string, error) {
	store, err := audit.Open(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Recent(ctx, 1); err != nil {
		return "", fmt.Errorf("not readable: %w", err)
	}

	sort.Strings(agents)
	var parts []string
	for _, name := range agents {
		counts, err := store.CountByOutcome(ctx, name)
		if err != nil {
			return "", fmt.Errorf("not readable: %w", err)
		}
		if len(counts) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s ok=%d error=%d fatal=%d",
			name, counts[audit.OutcomeOK], counts[audit.OutcomeError], counts[audit.OutcomeFatal]))
	}
	if len(parts) == 0 {
		return dbPath, nil
	}
	return dbPath + " (" + strings.Join(parts, ", ") + ")", nil
}
