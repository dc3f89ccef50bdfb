package teams

import (
	_ "embed"
	"fmt"

	"agentlink/internal/domain"
)

//go:embed schema.json
var actionSchema []byte

// ActionSchema returns the JSON schema of the Teams actions.
func ActionSchema() []byte { return actionSchema }

const actionSendMessage = "sendMessage"

// Action is the closed set of Teams actions. SendMessage is the only one.
type Action interface {
	teamsAction()
}

type SendMessage struct {
	Recipients  []string                `json:"recipients"`
	Message     string                  `json:"message"`
	Attachments []domain.FileAttachment `json:"attachments,omitempty"`
}

func (SendMessage) teamsAction() {}

func DecodeAction(a domain.Action) (Action, error) {
	switch a.Name {
	case actionSendMessage:
		var p SendMessage
		if err := a.DecodeParameters(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, a.Name)
	}
}
