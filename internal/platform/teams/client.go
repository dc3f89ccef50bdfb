// Package teams is the Microsoft Teams platform client. It talks to
// Microsoft Graph v1.0 to resolve users, find or create chats and post
// messages with file attachments.
package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"agentlink/internal/domain"
)

const (
	memberType   = "#microsoft.graph.aadUserConversationMember"
	userBindFmt  = "https://graph.microsoft.com/v1.0/users('%s')"
	groupTopic   = "Group Conversation"
	chatGroup    = "group"
	chatOneOnOne = "oneOnOne"
)

// Config configures a Teams client.
type Config struct {
	Auth    Authenticator
	BaseURL string        // defaults to DefaultBaseURL
	Timeout time.Duration // per Graph request
	Retries int           // GET retries on 429/5xx; zero disables
	Logger  *slog.Logger
}

// Client holds at most one Graph handle, created at login.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	graph Graph
	ts    oauth2.TokenSource
}

// New creates a client that is not yet logged in.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{cfg: cfg, logger: cfg.Logger}
}

// NewWithGraph creates an already initialized client over g.
func NewWithGraph(g Graph, logger *slog.Logger) *Client {
	return &Client{cfg: Config{Logger: logger}, logger: logger, graph: g}
}

// IsInitialized reports whether a Graph handle exists.
func (c *Client) IsInitialized() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph != nil
}

// Initialize authenticates and builds the Graph handle when none exists.
// With an existing handle, forceLogin re-validates the token. A failed
// forced login is retried exactly once.
func (c *Client) Initialize(ctx context.Context, forceLogin bool) error {
	err := c.connect(ctx, forceLogin)
	if err != nil && forceLogin {
		c.logger.Warn("graph login failed, retrying", "err", err)
		err = c.connect(ctx, forceLogin)
	}
	if err != nil {
		c.logger.Error("graph login failed", "err", err)
	}
	return err
}

func (c *Client) connect(ctx context.Context, forceLogin bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.graph == nil {
		if c.cfg.Auth == nil {
			return errors.New("teams: no authenticator configured")
		}
		ts, err := c.cfg.Auth.TokenSource(ctx)
		if err != nil {
			return fmt.Errorf("graph login: %w", err)
		}
		c.ts = ts
		c.graph = NewHTTPGraph(c.cfg.BaseURL, NewAuthorizedClient(ts, c.cfg.Timeout)).WithRetry(c.cfg.Retries, time.Second)
		c.logger.Info("graph client initialized")
		return nil
	}

	if forceLogin && c.ts != nil {
		if _, err := c.ts.Token(); err != nil {
			return fmt.Errorf("graph token refresh: %w", err)
		}
	}
	return nil
}

func (c *Client) handle() Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

type idResponse struct {
	ID string `json:"id"`
}

type usersResponse struct {
	Value []idResponse `json:"value"`
}

type chatMember struct {
	UserID string `json:"userId"`
}

type chat struct {
	ID      string       `json:"id"`
	Members []chatMember `json:"members"`
}

type chatsResponse struct {
	Value []chat `json:"value"`
}

type memberBinding struct {
	ODataType string   `json:"@odata.type"`
	Roles     []string `json:"roles"`
	UserBind  string   `json:"user@odata.bind"`
}

type newChatRequest struct {
	ChatType string          `json:"chatType"`
	Members  []memberBinding `json:"members"`
	Topic    string          `json:"topic,omitempty"`
}

type messageBody struct {
	Content string `json:"content"`
}

type messageRequest struct {
	Body        messageBody       `json:"body"`
	Attachments []graphAttachment `json:"attachments"`
}

// CallerID returns the signed-in user's ID, or "" on failure.
func (c *Client) CallerID(ctx context.Context) string {
	g := c.handle()
	if g == nil {
		return ""
	}
	var me idResponse
	if err := g.Get(ctx, "/me", Query{{"$select", "id"}}, &me); err != nil {
		c.logger.Error("cannot retrieve caller id", "err", err)
		return ""
	}
	return me.ID
}

// FindUserIDsByNames resolves each name to the first user whose display or
// given name starts with it. Names with no match are skipped, so the result
// may be shorter than names.
func (c *Client) FindUserIDsByNames(ctx context.Context, names []string) []string {
	g := c.handle()
	if g == nil {
		return nil
	}

	var ids []string
	for _, name := range names {
		lit := odataString(name)
		q := Query{
			{"$filter", fmt.Sprintf("startswith(displayName, %s) or startswith(givenName, %s)", lit, lit)},
			{"$select", "id"},
			{"$top", "1"},
		}
		var users usersResponse
		if err := g.Get(ctx, "/users", q, &users); err != nil {
			c.logger.Error("user lookup failed", "name", name, "err", err)
			continue
		}
		if len(users.Value) == 0 || users.Value[0].ID == "" {
			c.logger.Warn("no user found", "name", name)
			continue
		}
		ids = append(ids, users.Value[0].ID)
	}
	return ids
}

// CreateOrFindGroupChat returns the first group chat containing the caller
// and every user (other members may be present too), creating one if none
// exists. It returns "" on failure.
func (c *Client) CreateOrFindGroupChat(ctx context.Context, callerID string, userIDs []string) string {
	all := append([]string{callerID}, userIDs...)
	return c.createOrFindChat(ctx, chatGroup, all, groupTopic)
}

// CreateOrFindOneOnOneChat returns the one-on-one chat between the caller
// and otherID, creating it if needed. It returns "" on failure.
func (c *Client) CreateOrFindOneOnOneChat(ctx context.Context, callerID, otherID string) string {
	return c.createOrFindChat(ctx, chatOneOnOne, []string{callerID, otherID}, "")
}

func (c *Client) createOrFindChat(ctx context.Context, chatType string, memberIDs []string, topic string) string {
	g := c.handle()
	if g == nil {
		return ""
	}

	var existing chatsResponse
	q := Query{
		{"$filter", fmt.Sprintf("chatType eq '%s'", chatType)},
		{"$expand", "members"},
	}
	if err := g.Get(ctx, "/me/chats", q, &existing); err != nil {
		c.logger.Error("list chats failed", "chat_type", chatType, "err", err)
		return ""
	}
	for _, ch := range existing.Value {
		if containsAll(ch.Members, memberIDs) {
			c.logger.Info("found existing chat", "chat_type", chatType, "chat_id", ch.ID)
			return ch.ID
		}
	}

	req := newChatRequest{ChatType: chatType, Topic: topic}
	for _, id := range memberIDs {
		req.Members = append(req.Members, memberBinding{
			ODataType: memberType,
			Roles:     []string{"owner"},
			UserBind:  fmt.Sprintf(userBindFmt, id),
		})
	}
	var created idResponse
	if err := g.Post(ctx, "/chats", req, &created); err != nil {
		c.logger.Error("create chat failed", "chat_type", chatType, "err", err)
		return ""
	}
	if created.ID == "" {
		c.logger.Error("create chat returned no id", "chat_type", chatType)
		return ""
	}
	c.logger.Info("created chat", "chat_type", chatType, "chat_id", created.ID)
	return created.ID
}

// SendMessage posts content with the readable attachments to every chat in
// turn. A failed post clears the result but later chats are still tried.
func (c *Client) SendMessage(ctx context.Context, chatIDs []string, content string, attachments []domain.FileAttachment) bool {
	g := c.handle()
	if g == nil {
		return false
	}

	msg := messageRequest{
		Body:        messageBody{Content: content},
		Attachments: prepareAttachments(ctx, attachments, c.logger),
	}

	allSent := true
	for _, id := range chatIDs {
		if err := g.Post(ctx, "/chats/"+id+"/messages", msg, nil); err != nil {
			c.logger.Error("send message failed", "chat_id", id, "err", err)
			allSent = false
			continue
		}
		c.logger.Info("message sent", "chat_id", id)
	}
	return allSent
}

func containsAll(members []chatMember, ids []string) bool {
	present := make(map[string]bool, len(members))
	for _, m := range members {
		present[m.UserID] = true
	}
	for _, id := range ids {
		if !present[id] {
			return false
		}
	}
	return true
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
