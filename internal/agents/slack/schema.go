package slack

import (
	_ "embed"
	"fmt"

	"github.com/slack-go/slack"

	"agentlink/internal/domain"
)

//go:embed schema.json
var actionSchema []byte

// ActionSchema returns the JSON schema of the Slack actions.
func ActionSchema() []byte { return actionSchema }

const (
	actionSendMessage   = "sendMessageInSlack"
	actionCreateChannel = "createChannelInSlack"
)

// Action is one of SendMessageInSlack or CreateChannelInSlack.
type Action interface {
	slackAction()
}

type SendMessageInSlack struct {
	ChannelName string             `json:"channelName"`
	Message     string             `json:"message"`
	Attachments []slack.Attachment `json:"attachments,omitempty"`
}

type CreateChannelInSlack struct {
	ChannelName string `json:"channelName"`
	IsPrivate   bool   `json:"isPrivate,omitempty"`
}

func (SendMessageInSlack) slackAction()   {}
func (CreateChannelInSlack) slackAction() {}

// DecodeAction maps the envelope onto a typed Slack action. An unrecognized
// action name yields an error wrapping domain.ErrUnknownAction.
func DecodeAction(a domain.Action) (Action, error) {
	switch a.Name {
	case actionSendMessage:
		var p SendMessageInSlack
		if err := a.DecodeParameters(&p); err != nil {
			return nil, err
		}
		return p, nil
	case actionCreateChannel:
		var p CreateChannelInSlack
		if err := a.DecodeParameters(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, a.Name)
	}
}
