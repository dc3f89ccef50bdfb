package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentlink/internal/audit"
	"agentlink/internal/config"
	"agentlink/internal/dispatcher"
	"agentlink/internal/wsbridge"

	"github.com/spf13/cobra"
)

// openAudit returns nil when the audit trail is disabled.
func openAudit(cfg *config.Config) (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	store, err := audit.Open(cfg.Audit.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	return store, nil
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive dispatcher shell",
		Long:  "Reads @agent requests from stdin. Built-ins: /agents, /enable, /disable, /metrics, /history, /quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, rt *sessionEnv) error {
				rc := dispatcher.ReplConfig{
					Session: rt.session,
					Metrics: rt.metrics,
					In:      cmd.InOrStdin(),
					Out:     cmd.OutOrStdout(),
					Logger:  logger,
				}
				if rt.audit != nil {
					rc.History = rt.audit
				}
				return dispatcher.NewRepl(rc).Run(ctx)
			})
		},
	}
}

func keepAliveCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Hold a WebSocket to the agent host open with periodic keepAlive frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.WebSocket.URL
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sock := wsbridge.Dial(ctx, url, logger)
			if sock == nil {
				return fmt.Errorf("cannot connect to %s", url)
			}
			defer sock.Close()

			logger.Info("keepalive started", "url", url, "interval_s", cfg.WebSocket.KeepAliveSeconds)
			sock.KeepAlive(ctx, cfg.WebSocket.Source, time.Duration(cfg.WebSocket.KeepAliveSeconds)*time.Second)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "WebSocket URL (default: websocket.url from config)")
	return cmd
}
