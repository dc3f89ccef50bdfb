package domain

import (
	"context"
	"fmt"
)

// AgentContext is the per-session state an agent creates and mutates.
// Only the agent that created it knows its concrete type.
type AgentContext any

// CommandInfo describes an agent command exposed to the dispatcher.
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     bool   `json:"default,omitempty"`
}

// AppAgent is a dispatcher plugin bound to one external platform.
type AppAgent interface {
	Manifest() Manifest
	InitializeContext(ctx context.Context) (AgentContext, error)
	UpdateContext(ctx context.Context, enable bool, ac AgentContext) error
	// ExecuteAction renders every recoverable failure into the returned
	// result. A non-nil error is fatal (see IsFatal).
	ExecuteAction(ctx context.Context, action Action, ac AgentContext) (*ActionResult, error)
	ExecuteCommand(ctx context.Context, name string, args []string, ac AgentContext) (*ActionResult, error)
	Commands() []CommandInfo
}

// DefaultCommand returns the command flagged as default, or "".
func DefaultCommand(cmds []CommandInfo) string {
	for _, c := range cmds {
		if c.Default {
			return c.Name
		}
	}
	return ""
}

// ResolveCommand maps name to a known command, substituting the default
// command when name is empty.
func ResolveCommand(cmds []CommandInfo, name string) (string, error) {
	if name == "" {
		name = DefaultCommand(cmds)
	}
	for _, c := range cmds {
		if c.Name == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
