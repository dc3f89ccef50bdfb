package loader

import (
	"log/slog"
	"sort"
	"sync"

	"agentlink/internal/config"
	"agentlink/internal/domain"
)

// Deps is what a module factory receives.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
}

// Factory instantiates a module's agent.
type Factory func(Deps) domain.AppAgent

// Module is an in-process agent module: its bundled manifest and factory.
type Module struct {
	Manifest    domain.Manifest
	Instantiate Factory
}

// Registry holds the agent modules compiled into the binary.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		modules: make(map[string]Module),
		logger:  logger,
	}
}

func (r *Registry) Register(name string, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
	r.logger.Debug("registered agent module", "name", name)
}

func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
