package slack

import (
	"context"

	"github.com/slack-go/slack"
)

// Channel is the subset of a Slack conversation the client matches on.
type Channel struct {
	ID             string
	Name           string
	NameNormalized string
}

// API is the narrow slice of the Slack Web API the client depends on.
type API interface {
	AuthTest(ctx context.Context) error
	// ListConversations returns a single page; callers accept truncation.
	ListConversations(ctx context.Context) ([]Channel, error)
	PostMessage(ctx context.Context, channelID, text string, attachments []slack.Attachment) error
	CreateConversation(ctx context.Context, name string, isPrivate bool) error
}

// webAPI adapts *slack.Client to API.
type webAPI struct {
	client *slack.Client
}

// NewAPI returns an API backed by the Slack Web API.
func NewAPI(token string, opts ...slack.Option) API {
	return &webAPI{client: slack.New(token, opts...)}
}

func (w *webAPI) AuthTest(ctx context.Context) error {
	_, err := w.client.AuthTestContext(ctx)
	return err
}

func (w *webAPI) ListConversations(ctx context.Context) ([]Channel, error) {
	channels, _, err := w.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{})
	if err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, Channel{ID: ch.ID, Name: ch.Name, NameNormalized: ch.NameNormalized})
	}
	return out, nil
}

func (w *webAPI) PostMessage(ctx context.Context, channelID, text string, attachments []slack.Attachment) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(attachments...))
	}
	_, _, err := w.client.PostMessageContext(ctx, channelID, opts...)
	return err
}

func (w *webAPI) CreateConversation(ctx context.Context, name string, isPrivate bool) error {
	_, err := w.client.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   isPrivate,
	})
	return err
}
