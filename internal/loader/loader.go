// Package loader resolves agent names from config to manifests and live
// AppAgent instances, either in-process or behind a separate-process shim.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"agentlink/internal/config"
	"agentlink/internal/domain"
)

// ShimStarter spawns the named module in a separate process.
type ShimStarter func(ctx context.Context, module string) (domain.AppAgent, error)

// Config configures a Loader.
type Config struct {
	App       *config.Config
	Registry  *Registry
	StartShim ShimStarter // required when any entry runs in a separate process
	Logger    *slog.Logger
}

// Loader caches manifests and agent instances for the process lifetime.
type Loader struct {
	cfg    Config
	logger *slog.Logger

	configsOnce sync.Once
	configs     map[string]domain.Manifest
	configsErr  error

	mu     sync.Mutex
	agents map[string]domain.AppAgent
}

func New(cfg Config) *Loader {
	if cfg.App == nil {
		cfg.App = config.Defaults()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(cfg.Logger)
	}
	return &Loader{
		cfg:    cfg,
		logger: cfg.Logger,
		agents: make(map[string]domain.AppAgent),
	}
}

// Names returns the configured agent names, sorted.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.cfg.App.Agents.Entries))
	for n := range l.cfg.App.Agents.Entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Configs returns the manifest of every configured agent. The result is
// computed once and never refreshed.
func (l *Loader) Configs(ctx context.Context) (map[string]domain.Manifest, error) {
	l.configsOnce.Do(func() {
		out := make(map[string]domain.Manifest, len(l.cfg.App.Agents.Entries))
		for name, info := range l.cfg.App.Agents.Entries {
			m, err := l.manifestFor(info)
			if err != nil {
				l.configsErr = fmt.Errorf("agent %s: %w", name, err)
				return
			}
			out[name] = m
		}
		l.configs = out
	})
	return l.configs, l.configsErr
}

func (l *Loader) manifestFor(info config.AgentInfo) (domain.Manifest, error) {
	if !info.IsModule() {
		return info.Manifest, nil
	}

	path, err := findManifest(l.cfg.App.Agents.ModulePaths, info.Name)
	if err != nil {
		return domain.Manifest{}, err
	}
	if path != "" {
		l.logger.Debug("loading agent manifest", "module", info.Name, "path", path)
		return readManifest(path)
	}

	if mod, ok := l.cfg.Registry.Lookup(info.Name); ok {
		return mod.Manifest, nil
	}
	return domain.Manifest{}, fmt.Errorf("no manifest found for module %s", info.Name)
}

// ModuleAgent returns the agent for a module entry, loading it on first use.
// Loaded agents are cached for the life of the process.
func (l *Loader) ModuleAgent(ctx context.Context, name string) (domain.AppAgent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.agents[name]; ok {
		return a, nil
	}

	info, ok := l.cfg.App.Agents.Entries[name]
	if !ok || !info.IsModule() {
		return nil, fmt.Errorf("Unable to load app agent name: %s", name)
	}

	mod, ok := l.cfg.Registry.Lookup(info.Name)
	if !ok || mod.Instantiate == nil {
		return nil, fmt.Errorf("module %s: missing 'instantiate' function", info.Name)
	}

	var (
		agent domain.AppAgent
		err   error
	)
	if l.separateProcess(info) {
		if l.cfg.StartShim == nil {
			return nil, fmt.Errorf("module %s: separate process mode without a shim starter", info.Name)
		}
		l.logger.Info("starting agent process", "agent", name, "module", info.Name)
		agent, err = l.cfg.StartShim(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("start agent %s: %w", name, err)
		}
	} else {
		l.logger.Info("loading agent in-process", "agent", name, "module", info.Name)
		agent = mod.Instantiate(Deps{Config: l.cfg.App, Logger: l.logger})
	}

	l.agents[name] = agent
	return agent, nil
}

func (l *Loader) separateProcess(info config.AgentInfo) bool {
	if !l.cfg.App.Agents.ExecMode || os.Getenv(config.ExecModeEnv) == "0" {
		return false
	}
	return info.ExecMode == "" || info.ExecMode == config.ExecModeSeparate
}

// Close releases loaded agents that hold resources, such as shim processes.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for name, a := range l.agents {
		c, ok := a.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			l.logger.Warn("close agent", "agent", name, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
