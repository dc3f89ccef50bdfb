package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"agentlink/internal/audit"
	"agentlink/internal/domain"
	"agentlink/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubContext struct {
	enabled bool
}

type stubAgent struct {
	updates []bool
}

func (a *stubAgent) Manifest() domain.Manifest { return domain.Manifest{Description: "stub"} }
func (a *stubAgent) Commands() []domain.CommandInfo {
	return []domain.CommandInfo{{Name: "login", Default: true}, {Name: "echo"}}
}

func (a *stubAgent) InitializeContext(ctx context.Context) (domain.AgentContext, error) {
	return &stubContext{}, nil
}

func (a *stubAgent) UpdateContext(ctx context.Context, enable bool, ac domain.AgentContext) error {
	a.updates = append(a.updates, enable)
	ac.(*stubContext).enabled = enable
	return nil
}

func (a *stubAgent) ExecuteAction(ctx context.Context, action domain.Action, ac domain.AgentContext) (*domain.ActionResult, error) {
	if !ac.(*stubContext).enabled {
		return nil, domain.ErrBadContext
	}
	switch action.Name {
	case "ok":
		return domain.ResultFromHTML("<div>done</div>"), nil
	case "fail":
		return domain.ResultFromError("Error encountered!"), nil
	case "transport":
		return nil, fmt.Errorf("%w: boom", domain.ErrTransport)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, action.Name)
}

func (a *stubAgent) ExecuteCommand(ctx context.Context, name string, args []string, ac domain.AgentContext) (*domain.ActionResult, error) {
	name, err := domain.ResolveCommand(a.Commands(), name)
	if err != nil {
		return nil, err
	}
	return domain.ResultFromHTML(name + ":" + strings.Join(args, ",")), nil
}

type stubSource struct {
	agents map[string]domain.AppAgent
}

func (s *stubSource) ModuleAgent(ctx context.Context, name string) (domain.AppAgent, error) {
	a, ok := s.agents[name]
	if !ok {
		return nil, fmt.Errorf("Unable to load app agent name: %s", name)
	}
	return a, nil
}

func (s *stubSource) Names() []string { return []string{"stub"} }

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memRecorder) Record(ctx context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func newTestSession() (*Session, *stubAgent, *metrics.Collector, *memRecorder) {
	agent := &stubAgent{}
	mc := metrics.NewCollector()
	rec := &memRecorder{}
	s := NewSession(Config{
		Agents:  &stubSource{agents: map[string]domain.AppAgent{"stub": agent}},
		Metrics: mc,
		Audit:   rec,
		Logger:  testLogger(),
	})
	return s, agent, mc, rec
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest(`@slack {"actionName":"sendMessageInSlack","parameters":{"channelName":"general"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Agent != "slack" || req.Action == nil || req.Action.Name != "sendMessageInSlack" {
		t.Fatalf("unexpected request %+v", req)
	}

	req, err = ParseRequest("  @teams login  --force ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Agent != "teams" || req.Command != "login" || len(req.Args) != 1 || req.Args[0] != "--force" {
		t.Fatalf("unexpected command request %+v", req)
	}

	req, err = ParseRequest("@discord")
	if err != nil || req.Command != "" {
		t.Fatalf("expected bare agent request, got %+v, %v", req, err)
	}

	for _, bad := range []string{"slack login", "@", "@ login", `@slack {"parameters":{}}`} {
		if _, err := ParseRequest(bad); !errors.Is(err, ErrSyntax) {
			t.Fatalf("%q: expected ErrSyntax, got %v", bad, err)
		}
	}
}

func TestExecute_AutoEnablesAndRecords(t *testing.T) {
	s, agent, mc, rec := newTestSession()
	ctx := context.Background()

	res, err := s.Execute(ctx, `@stub {"actionName":"ok"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.HTML != "<div>done</div>" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(agent.updates) != 1 || !agent.updates[0] {
		t.Fatalf("expected one enable, got %v", agent.updates)
	}
	if got := s.Enabled(); len(got) != 1 || got[0] != "stub" {
		t.Fatalf("expected stub enabled, got %v", got)
	}
	if mc.EnabledAgents().Value() != 1 {
		t.Fatalf("expected enabled gauge 1, got %d", mc.EnabledAgents().Value())
	}

	if _, err := s.Execute(ctx, `@stub {"actionName":"fail"}`); err != nil {
		t.Fatalf("display error must not escalate: %v", err)
	}
	if mc.ActionsTotal("stub", audit.OutcomeOK).Value() != 1 || mc.ActionsTotal("stub", audit.OutcomeError).Value() != 1 {
		t.Fatal("unexpected outcome counters")
	}
	if mc.ActionLatency("stub").Count() != 2 {
		t.Fatalf("expected 2 latency observations, got %d", mc.ActionLatency("stub").Count())
	}
	if len(rec.entries) != 2 || rec.entries[1].Error != "Error encountered!" || rec.entries[0].Display != "<div>done</div>" {
		t.Fatalf("unexpected audit entries %+v", rec.entries)
	}
}

func TestExecute_FatalEscalates(t *testing.T) {
	s, _, mc, rec := newTestSession()
	_, err := s.Execute(context.Background(), `@stub {"actionName":"nope"}`)
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if mc.ActionsTotal("stub", audit.OutcomeFatal).Value() != 1 {
		t.Fatal("expected fatal outcome counted")
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeFatal {
		t.Fatalf("unexpected audit entries %+v", rec.entries)
	}

	_, err = s.Execute(context.Background(), "@stub frobnicate")
	if !errors.Is(err, domain.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestExecute_NonFatalErrorRendered(t *testing.T) {
	s, _, _, rec := newTestSession()
	res, err := s.Execute(context.Background(), `@stub {"actionName":"transport"}`)
	if err != nil {
		t.Fatalf("expected rendered error, got %v", err)
	}
	if !res.IsError() || !strings.Contains(res.Error, "boom") {
		t.Fatalf("unexpected result %+v", res)
	}
	if rec.entries[0].Outcome != audit.OutcomeError {
		t.Fatalf("expected error outcome, got %q", rec.entries[0].Outcome)
	}
}

func TestExecute_DefaultCommand(t *testing.T) {
	s, _, _, rec := newTestSession()
	res, err := s.Execute(context.Background(), "@stub")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.HTML != "login:" {
		t.Fatalf("expected default command, got %q", res.HTML)
	}
	if rec.entries[0].Name != "login" || rec.entries[0].Kind != audit.KindCommand {
		t.Fatalf("expected audited default command, got %+v", rec.entries[0])
	}

	res, err = s.Execute(context.Background(), "@stub echo a b")
	if err != nil || res.HTML != "echo:a,b" {
		t.Fatalf("unexpected echo result %+v, %v", res, err)
	}
}

func TestExecute_UnknownAgent(t *testing.T) {
	s, _, mc, _ := newTestSession()
	_, err := s.Execute(context.Background(), "@nobody login")
	if err == nil || !strings.Contains(err.Error(), "Unable to load app agent name: nobody") {
		t.Fatalf("expected load error, got %v", err)
	}
	if mc.EnabledAgents().Value() != 0 {
		t.Fatal("failed load must not count as enabled")
	}
}

func TestEnableDisable(t *testing.T) {
	s, agent, mc, _ := newTestSession()
	ctx := context.Background()

	if err := s.Enable(ctx, "stub"); err != nil {
		t.Fatal(err)
	}
	if err := s.Enable(ctx, "stub"); err != nil {
		t.Fatal(err)
	}
	if len(agent.updates) != 1 {
		t.Fatalf("second enable should be a no-op, got %v", agent.updates)
	}
	if err := s.Disable(ctx, "stub"); err != nil {
		t.Fatal(err)
	}
	if err := s.Disable(ctx, "stub"); err != nil {
		t.Fatal(err)
	}
	if len(agent.updates) != 2 || agent.updates[1] {
		t.Fatalf("expected enable then disable, got %v", agent.updates)
	}
	if mc.EnabledAgents().Value() != 0 {
		t.Fatalf("expected gauge back at 0, got %d", mc.EnabledAgents().Value())
	}

	if err := s.Enable(ctx, "stub"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.Enabled()) != 0 {
		t.Fatal("close should disable everything")
	}
}
