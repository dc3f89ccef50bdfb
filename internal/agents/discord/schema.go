package discord

import (
	_ "embed"
	"fmt"

	"agentlink/internal/domain"
)

//go:embed schema.json
var actionSchema []byte

// ActionSchema returns the JSON schema of the Discord actions.
func ActionSchema() []byte { return actionSchema }

const (
	actionSendMessage   = "sendMessageInDiscord"
	actionCreateChannel = "createChannelInDiscord"
)

// Action is one of SendMessageInDiscord or CreateChannelInDiscord.
type Action interface {
	discordAction()
}

type SendMessageInDiscord struct {
	ChannelID string `json:"channelId"`
	Message   string `json:"message"`
}

type CreateChannelInDiscord struct {
	GuildID     string `json:"guildId,omitempty"`
	ChannelName string `json:"channelName"`
	IsPrivate   bool   `json:"isPrivate,omitempty"`
}

func (SendMessageInDiscord) discordAction()   {}
func (CreateChannelInDiscord) discordAction() {}

func DecodeAction(a domain.Action) (Action, error) {
	switch a.Name {
	case actionSendMessage:
		var p SendMessageInDiscord
		if err := a.DecodeParameters(&p); err != nil {
			return nil, err
		}
		return p, nil
	case actionCreateChannel:
		var p CreateChannelInDiscord
		if err := a.DecodeParameters(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, a.Name)
	}
}
