// Package shim runs an agent in a separate process and talks to it over
// MCP stdio. Host serves one in-process agent; Proxy is the dispatcher-side
// domain.AppAgent that forwards every call to a host.
package shim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentlink/internal/domain"
)

const (
	toolInitializeContext = "initializeContext"
	toolUpdateContext     = "updateContext"
	toolExecuteAction     = "executeAction"
	toolExecuteCommand    = "executeCommand"
	toolCommands          = "commands"
	toolManifest          = "manifest"

	// fatalPrefix marks tool errors that must escalate on the proxy side.
	fatalPrefix = "fatal: "
)

// Host exposes one agent as MCP tools. Agent contexts stay in the host and
// are referenced by ID.
type Host struct {
	agent  domain.AppAgent
	logger *slog.Logger

	mu       sync.Mutex
	contexts map[string]domain.AgentContext
}

func NewHost(agent domain.AppAgent, logger *slog.Logger) *Host {
	return &Host{
		agent:    agent,
		logger:   logger,
		contexts: make(map[string]domain.AgentContext),
	}
}

// Server builds the MCP server with the agent tools registered.
func (h *Host) Server(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolInitializeContext,
		mcp.WithDescription("Create a new agent context and return its ID"),
	), h.handleInitializeContext)

	s.AddTool(mcp.NewTool(toolUpdateContext,
		mcp.WithDescription("Enable or disable the agent for a context"),
		mcp.WithString("contextId", mcp.Required(), mcp.Description("Context ID from initializeContext")),
		mcp.WithBoolean("enable", mcp.Required(), mcp.Description("Enable (true) or disable (false)")),
	), h.handleUpdateContext)

	s.AddTool(mcp.NewTool(toolExecuteAction,
		mcp.WithDescription("Execute a JSON action against a context"),
		mcp.WithString("contextId", mcp.Required(), mcp.Description("Context ID from initializeContext")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action envelope as JSON")),
	), h.handleExecuteAction)

	s.AddTool(mcp.NewTool(toolExecuteCommand,
		mcp.WithDescription("Run an agent command against a context"),
		mcp.WithString("contextId", mcp.Required(), mcp.Description("Context ID from initializeContext")),
		mcp.WithString("name", mcp.Description("Command name; empty runs the default command")),
		mcp.WithString("args", mcp.Description("Command arguments as a JSON array of strings")),
	), h.handleExecuteCommand)

	s.AddTool(mcp.NewTool(toolCommands,
		mcp.WithDescription("List the agent commands as JSON"),
	), h.handleCommands)

	s.AddTool(mcp.NewTool(toolManifest,
		mcp.WithDescription("Return the agent manifest as JSON"),
	), h.handleManifest)

	return s
}

// Serve runs the MCP server over in and out until ctx is done or in closes.
func (h *Host) Serve(ctx context.Context, name, version string, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(h.Server(name, version))
	return stdio.Listen(ctx, in, out)
}

func (h *Host) handleInitializeContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ac, err := h.agent.InitializeContext(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("initialize context: %v", err)), nil
	}
	id := uuid.NewString()

	h.mu.Lock()
	h.contexts[id] = ac
	h.mu.Unlock()

	h.logger.Debug("context created", "context_id", id)
	return mcp.NewToolResultText(id), nil
}

func (h *Host) handleUpdateContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ac, errResult := h.lookup(request)
	if errResult != nil {
		return errResult, nil
	}
	enable := request.GetBool("enable", false)
	if err := h.agent.UpdateContext(ctx, enable, ac); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (h *Host) handleExecuteAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ac, errResult := h.lookup(request)
	if errResult != nil {
		return errResult, nil
	}
	raw, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := domain.ParseAction([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := h.agent.ExecuteAction(ctx, action, ac)
	if err != nil {
		return toolError(err), nil
	}
	return resultText(res), nil
}

func (h *Host) handleExecuteCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ac, errResult := h.lookup(request)
	if errResult != nil {
		return errResult, nil
	}
	name := request.GetString("name", "")
	var args []string
	if raw := request.GetString("args", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("args must be a JSON array of strings: %v", err)), nil
		}
	}

	res, err := h.agent.ExecuteCommand(ctx, name, args, ac)
	if err != nil {
		return toolError(err), nil
	}
	return resultText(res), nil
}

func (h *Host) handleCommands(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(h.agent.Commands())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Host) handleManifest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(h.agent.Manifest())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Host) lookup(request mcp.CallToolRequest) (domain.AgentContext, *mcp.CallToolResult) {
	id, err := request.RequireString("contextId")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	h.mu.Lock()
	ac, ok := h.contexts[id]
	h.mu.Unlock()
	if !ok {
		return nil, toolError(fmt.Errorf("%w: unknown context id %s", domain.ErrBadContext, id))
	}
	return ac, nil
}

func toolError(err error) *mcp.CallToolResult {
	if domain.IsFatal(err) {
		return mcp.NewToolResultError(fatalPrefix + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func resultText(res *domain.ActionResult) *mcp.CallToolResult {
	if res == nil {
		return mcp.NewToolResultError("agent returned no result")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}
