package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	discordagent "agentlink/internal/agents/discord"
	slackagent "agentlink/internal/agents/slack"
	teamsagent "agentlink/internal/agents/teams"
	"agentlink/internal/audit"
	"agentlink/internal/config"
	"agentlink/internal/dispatcher"
	"agentlink/internal/domain"
	"agentlink/internal/loader"
	"agentlink/internal/metrics"
	"agentlink/internal/shim"

	"github.com/spf13/cobra"
)

// bundledModule is an agent module compiled into the binary.
type bundledModule struct {
	manifest func() (domain.Manifest, error)
	schema   func() []byte
	factory  loader.Factory
}

var bundled = map[string]bundledModule{
	"slack":   {manifest: slackagent.Manifest, schema: slackagent.ActionSchema, factory: slackagent.Instantiate},
	"discord": {manifest: discordagent.Manifest, schema: discordagent.ActionSchema, factory: discordagent.Instantiate},
	"teams":   {manifest: teamsagent.Manifest, schema: teamsagent.ActionSchema, factory: teamsagent.Instantiate},
}

func newRegistry() *loader.Registry {
	reg := loader.NewRegistry(logger)
	for name, m := range bundled {
		manifest, err := m.manifest()
		if err != nil {
			logger.Warn("bundled manifest unreadable", "module", name, "err", err)
		}
		reg.Register(name, loader.Module{Manifest: manifest, Instantiate: m.factory})
	}
	return reg
}

// startShim re-executes this binary as "agent-host <module>".
func startShim(ctx context.Context, module string) (domain.AppAgent, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	p, err := shim.Start(ctx, shim.StartConfig{
		Command: exe,
		Args:    []string{"--config", resolveConfigPath(), "agent-host", module},
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newLoader(cfg *config.Config) *loader.Loader {
	return loader.New(loader.Config{
		App:       cfg,
		Registry:  newRegistry(),
		StartShim: startShim,
		Logger:    logger,
	})
}

// sessionEnv is what a dispatcher-backed command works with.
type sessionEnv struct {
	session *dispatcher.Session
	metrics *metrics.Collector
	audit   *audit.Store // nil when disabled
}

// withSession runs fn against a fresh session and tears everything down
// afterwards.
func withSession(fn func(ctx context.Context, rt *sessionEnv) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ld := newLoader(cfg)
	defer ld.Close()

	rt := &sessionEnv{metrics: metrics.NewCollector()}
	sc := dispatcher.Config{Agents: ld, Metrics: rt.metrics, Logger: logger}
	if rt.audit, err = openAudit(cfg); err != nil {
		return err
	}
	if rt.audit != nil {
		defer rt.audit.Close()
		sc.Audit = rt.audit
	}

	rt.session = dispatcher.NewSession(sc)
	defer rt.session.Close(context.WithoutCancel(ctx))
	return fn(ctx, rt)
}

func agentsCmd() *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			configs, err := newLoader(cfg).Configs(cmd.Context())
			if err != nil {
				return err
			}
			names := make([]string, 0, len(configs))
			for n := range configs {
				names = append(names, n)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, n := range names {
				m := configs[n]
				fmt.Fprintf(out, "%-4s %-10s %s\n", m.Emoji, n, m.Description)
				if !schema {
					continue
				}
				if b, ok := bundled[n]; ok {
					var pretty json.RawMessage = b.schema()
					data, _ := json.MarshalIndent(pretty, "     ", "  ")
					fmt.Fprintf(out, "     %s\n", data)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "print each bundled agent's action schema")
	return cmd
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <agent> <json action | command [args...]>",
		Short: "Run one action or command and print the result",
		Example: `  agentlink exec slack '{"actionName":"sendMessageInSlack","parameters":{"channelName":"general","message":"hi"}}'
  agentlink exec teams login`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := "@" + args[0] + " " + strings.Join(args[1:], " ")
			return withSession(func(ctx context.Context, rt *sessionEnv) error {
				res, err := rt.session.Execute(ctx, line)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				if res.IsError() {
					return fmt.Errorf("%s: action failed", args[0])
				}
				return nil
			})
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <agent>",
		Short: "Log an agent into its platform",
		Long:  "Runs the agent's login command. Teams opens the Microsoft device login flow.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, rt *sessionEnv) error {
				res, err := rt.session.ExecuteCommand(ctx, args[0], "login", nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				return nil
			})
		},
	}
}

// agentHostCmd serves one bundled module over MCP on stdio. Stdout carries
// protocol traffic only.
func agentHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "agent-host <module>",
		Short:  "Serve an agent module over stdio (used by the dispatcher)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			name := args[0]
			m, ok := bundled[name]
			if !ok {
				return fmt.Errorf("module %s: missing 'instantiate' function", name)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.With("module", name, "pid", os.Getpid())
			agent := m.factory(loader.Deps{Config: cfg, Logger: log})
			log.Debug("agent host serving")
			return shim.NewHost(agent, log).Serve(ctx, "agentlink-"+name, version, os.Stdin, os.Stdout)
		},
	}
}
