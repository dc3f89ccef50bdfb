package domain

import "errors"

var (
	// ErrNotLoggedIn means the agent context holds no initialized client.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrUnresolved means a human-friendly name did not map to a platform ID.
	ErrUnresolved = errors.New("name not resolved")
	// ErrTransport means the platform call itself failed.
	ErrTransport = errors.New("platform transport failure")
	// ErrInvalidName means a name failed validation before any network call.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidParameters means the action parameters did not decode.
	ErrInvalidParameters = errors.New("invalid action parameters")
	// ErrUnknownAction is fatal: the agent cannot handle the action tag.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownCommand is fatal: the agent has no such command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadContext means a context of the wrong type reached an agent.
	ErrBadContext = errors.New("agent context has unexpected type")
)

// IsFatal reports whether err must escalate to the caller instead of being
// rendered as a display error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrBadContext)
}
