package domain

import (
	"encoding/json"
	"fmt"
)

// Action is the wire envelope the dispatcher hands to an agent. Each agent
// decodes Parameters into its own closed set of typed actions.
type Action struct {
	Name       string          `json:"actionName"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ParseAction decodes a JSON action envelope.
func ParseAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	if a.Name == "" {
		return Action{}, fmt.Errorf("decode action: missing actionName")
	}
	return a, nil
}

// DecodeParameters unmarshals the action parameters into dst.
// An absent parameters object leaves dst at its zero value.
func (a Action) DecodeParameters(dst any) error {
	if len(a.Parameters) == 0 || string(a.Parameters) == "null" {
		return nil
	}
	if err := json.Unmarshal(a.Parameters, dst); err != nil {
		return fmt.Errorf("%w: %s parameters: %v", ErrInvalidParameters, a.Name, err)
	}
	return nil
}

// ActionResult is the display payload returned to the dispatcher.
// Exactly one of HTML or Error is set.
type ActionResult struct {
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

// ResultFromHTML wraps a rendered success fragment.
func ResultFromHTML(html string) *ActionResult {
	return &ActionResult{HTML: html}
}

// ResultFromError wraps a user-facing error message.
func ResultFromError(msg string) *ActionResult {
	return &ActionResult{Error: msg}
}

func (r *ActionResult) IsError() bool { return r != nil && r.Error != "" }

// String renders the result for terminal output.
func (r *ActionResult) String() string {
	if r == nil {
		return ""
	}
	if r.Error != "" {
		return "error: " + r.Error
	}
	return r.HTML
}
