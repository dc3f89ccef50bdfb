package shim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"agentlink/internal/domain"
)

// Caller is the MCP client surface the proxy uses.
type Caller interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// RemoteContext is a handle to an agent context living in the host.
type RemoteContext struct {
	ID string
}

// StartConfig describes the host process to spawn.
type StartConfig struct {
	Command string
	Args    []string
	Env     []string  // appended to the current environment
	Stderr  io.Writer // receives host logs; defaults to os.Stderr
	Logger  *slog.Logger
}

// Proxy is a domain.AppAgent backed by a host process.
type Proxy struct {
	caller   Caller
	manifest domain.Manifest
	commands []domain.CommandInfo
	logger   *slog.Logger
}

var _ domain.AppAgent = (*Proxy)(nil)

// Start spawns the host and performs the MCP handshake.
func Start(ctx context.Context, cfg StartConfig) (*Proxy, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start agent host: %w", err)
	}

	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if r, ok := client.GetStderr(c); ok {
		go io.Copy(stderr, r)
	}

	p, err := NewProxy(ctx, c, cfg.Logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	return p, nil
}

// NewProxy initializes the MCP session on c and caches the agent manifest
// and commands.
func NewProxy(ctx context.Context, c Caller, logger *slog.Logger) (*Proxy, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "agentlink-dispatcher", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, req); err != nil {
		return nil, fmt.Errorf("initialize agent host: %w", err)
	}

	p := &Proxy{caller: c, logger: logger}

	text, err := p.call(ctx, toolManifest, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(text), &p.manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	text, err = p.call(ctx, toolCommands, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(text), &p.commands); err != nil {
		return nil, fmt.Errorf("decode commands: %w", err)
	}
	return p, nil
}

func (p *Proxy) Manifest() domain.Manifest      { return p.manifest }
func (p *Proxy) Commands() []domain.CommandInfo { return p.commands }

func (p *Proxy) InitializeContext(ctx context.Context) (domain.AgentContext, error) {
	id, err := p.call(ctx, toolInitializeContext, nil)
	if err != nil {
		return nil, err
	}
	return &RemoteContext{ID: id}, nil
}

func (p *Proxy) UpdateContext(ctx context.Context, enable bool, ac domain.AgentContext) error {
	rc, err := remote(ac)
	if err != nil {
		return err
	}
	_, err = p.call(ctx, toolUpdateContext, map[string]any{"contextId": rc.ID, "enable": enable})
	return err
}

func (p *Proxy) ExecuteAction(ctx context.Context, action domain.Action, ac domain.AgentContext) (*domain.ActionResult, error) {
	rc, err := remote(ac)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	text, err := p.call(ctx, toolExecuteAction, map[string]any{"contextId": rc.ID, "action": string(raw)})
	if err != nil {
		return nil, err
	}
	return decodeResult(text)
}

func (p *Proxy) ExecuteCommand(ctx context.Context, name string, args []string, ac domain.AgentContext) (*domain.ActionResult, error) {
	rc, err := remote(ac)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []string{}
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	text, err := p.call(ctx, toolExecuteCommand, map[string]any{"contextId": rc.ID, "name": name, "args": string(rawArgs)})
	if err != nil {
		return nil, err
	}
	return decodeResult(text)
}

// Close stops the host process.
func (p *Proxy) Close() error {
	return p.caller.Close()
}

func (p *Proxy) call(ctx context.Context, tool string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	if args != nil {
		req.Params.Arguments = args
	}

	res, err := p.caller.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent host %s: %w", tool, err)
	}
	text := textOf(res)
	if res.IsError {
		if msg, ok := strings.CutPrefix(text, fatalPrefix); ok {
			switch {
			case strings.Contains(msg, domain.ErrUnknownCommand.Error()):
				return "", rewrap(domain.ErrUnknownCommand, msg)
			case strings.Contains(msg, domain.ErrBadContext.Error()):
				return "", rewrap(domain.ErrBadContext, msg)
			}
			return "", rewrap(domain.ErrUnknownAction, msg)
		}
		return "", fmt.Errorf("agent host %s: %s", tool, text)
	}
	return text, nil
}

// rewrap restores sentinel in a host error message without repeating its
// text.
func rewrap(sentinel error, msg string) error {
	msg = strings.Replace(msg, sentinel.Error()+": ", "", 1)
	if msg == sentinel.Error() || msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func textOf(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			b.WriteString(tc.Text)
		case *mcp.TextContent:
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func decodeResult(text string) (*domain.ActionResult, error) {
	var res domain.ActionResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("decode action result: %w", err)
	}
	return &res, nil
}

func remote(ac domain.AgentContext) (*RemoteContext, error) {
	rc, ok := ac.(*RemoteContext)
	if !ok || rc == nil {
		return nil, fmt.Errorf("%w: %T", domain.ErrBadContext, ac)
	}
	return rc, nil
}
