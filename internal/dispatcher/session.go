// Package dispatcher routes "@agent ..." requests to loaded agents and owns
// the per-session agent contexts.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"agentlink/internal/audit"
	"agentlink/internal/domain"
	"agentlink/internal/metrics"
)

// AgentSource resolves agent names to live agents. *loader.Loader satisfies it.
type AgentSource interface {
	ModuleAgent(ctx context.Context, name string) (domain.AppAgent, error)
	Names() []string
}

// Recorder persists audit entries. *audit.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Config configures a Session.
type Config struct {
	Agents  AgentSource
	Metrics *metrics.Collector // optional
	Audit   Recorder           // optional
	Logger  *slog.Logger
}

// ErrSyntax means the request line could not be parsed.
var ErrSyntax = errors.New("request syntax")

type enabledAgent struct {
	agent domain.AppAgent
	ctx   domain.AgentContext
}

// Session is one dispatcher conversation. It is safe for concurrent use;
// requests to the same agent are serialized.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	enabled map[string]*enabledAgent
}

func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		logger:  cfg.Logger,
		enabled: make(map[string]*enabledAgent),
	}
}

// Enable loads the agent if needed, creates its context and switches it on.
// Enabling an enabled agent is a no-op.
func (s *Session) Enable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.enableLocked(ctx, name)
	return err
}

func (s *Session) enableLocked(ctx context.Context, name string) (*enabledAgent, error) {
	if ea, ok := s.enabled[name]; ok {
		return ea, nil
	}
	agent, err := s.cfg.Agents.ModuleAgent(ctx, name)
	if err != nil {
		return nil, err
	}
	ac, err := agent.InitializeContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize %s context: %w", name, err)
	}
	if err := agent.UpdateContext(ctx, true, ac); err != nil {
		return nil, fmt.Errorf("enable %s: %w", name, err)
	}
	ea := &enabledAgent{agent: agent, ctx: ac}
	s.enabled[name] = ea
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.EnabledAgents().Inc()
	}
	s.logger.Info("agent enabled", "agent", name)
	return ea, nil
}

// Disable switches the agent off and drops its context.
func (s *Session) Disable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ea, ok := s.enabled[name]
	if !ok {
		return nil
	}
	delete(s.enabled, name)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.EnabledAgents().Dec()
	}
	if err := ea.agent.UpdateContext(ctx, false, ea.ctx); err != nil {
		return fmt.Errorf("disable %s: %w", name, err)
	}
	s.logger.Info("agent disabled", "agent", name)
	return nil
}

// Enabled returns the enabled agent names, sorted.
func (s *Session) Enabled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.enabled))
	for n := range s.enabled {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Available returns every configured agent name.
func (s *Session) Available() []string { return s.cfg.Agents.Names() }

// Close disables every enabled agent.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	for _, name := range s.Enabled() {
		if err := s.Disable(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Request is a parsed request line.
type Request struct {
	Agent   string
	Action  *domain.Action // set for "@agent {json}"
	Command string
	Args    []string
}

// ParseRequest parses "@agent {json action}" or "@agent [command [args...]]".
func ParseRequest(line string) (Request, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "@") {
		return Request{}, fmt.Errorf("%w: request must start with @<agent>", ErrSyntax)
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	if name == "" {
		return Request{}, fmt.Errorf("%w: missing agent name", ErrSyntax)
	}
	req := Request{Agent: name}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "{") {
		action, err := domain.ParseAction([]byte(rest))
		if err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		req.Action = &action
		return req, nil
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		req.Command = fields[0]
		req.Args = fields[1:]
	}
	return req, nil
}

// Execute parses and runs one request line. Fatal agent errors are returned;
// every other failure comes back as an error result.
func (s *Session) Execute(ctx context.Context, line string) (*domain.ActionResult, error) {
	req, err := ParseRequest(line)
	if err != nil {
		return nil, err
	}
	if req.Action != nil {
		return s.ExecuteAction(ctx, req.Agent, *req.Action)
	}
	return s.ExecuteCommand(ctx, req.Agent, req.Command, req.Args)
}

// ExecuteAction enables the agent if needed and runs a typed action.
func (s *Session) ExecuteAction(ctx context.Context, agentName string, action domain.Action) (*domain.ActionResult, error) {
	return s.run(ctx, agentName, audit.KindAction, action.Name, func(ea *enabledAgent) (*domain.ActionResult, error) {
		return ea.agent.ExecuteAction(ctx, action, ea.ctx)
	})
}

// ExecuteCommand enables the agent if needed and runs a command. An empty
// command name selects the agent's default command.
func (s *Session) ExecuteCommand(ctx context.Context, agentName, command string, args []string) (*domain.ActionResult, error) {
	return s.run(ctx, agentName, audit.KindCommand, command, func(ea *enabledAgent) (*domain.ActionResult, error) {
		return ea.agent.ExecuteCommand(ctx, command, args, ea.ctx)
	})
}

func (s *Session) run(ctx context.Context, agentName string, kind audit.Kind, name string,
	fn func(*enabledAgent) (*domain.ActionResult, error)) (*domain.ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ea, err := s.enableLocked(ctx, agentName)
	if err != nil {
		return nil, err
	}

	if kind == audit.KindCommand && name == "" {
		name = domain.DefaultCommand(ea.agent.Commands())
	}

	start := time.Now()
	res, err := fn(ea)
	elapsed := time.Since(start)

	outcome := audit.OutcomeOK
	switch {
	case err != nil && domain.IsFatal(err):
		outcome = audit.OutcomeFatal
	case err != nil:
		// Agents should render recoverable failures themselves.
		s.logger.Warn("agent returned non-fatal error", "agent", agentName, "name", name, "err", err)
		res, err = domain.ResultFromError(err.Error()), nil
		outcome = audit.OutcomeError
	case res.IsError():
		outcome = audit.OutcomeError
	}

	s.observe(ctx, agentName, kind, name, outcome, res, err, elapsed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", agentName, err)
	}
	return res, nil
}

func (s *Session) observe(ctx context.Context, agentName string, kind audit.Kind, name, outcome string,
	res *domain.ActionResult, err error, elapsed time.Duration) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActionsTotal(agentName, outcome).Inc()
		s.cfg.Metrics.ActionLatency(agentName).Observe(elapsed.Seconds())
	}
	if s.cfg.Audit == nil {
		return
	}
	e := audit.Entry{
		Agent:    agentName,
		Kind:     kind,
		Name:     name,
		Outcome:  outcome,
		Duration: elapsed,
	}
	if res != nil {
		e.Display, e.Error = res.HTML, res.Error
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := s.cfg.Audit.Record(ctx, e); aerr != nil {
		s.logger.Warn("audit record failed", "agent", agentName, "err", aerr)
	}
}
