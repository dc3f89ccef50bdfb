package discord

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"agentlink/internal/domain"
	discordclient "agentlink/internal/platform/discord"
)

type fakeSession struct {
	openErr error
	opened  int
	closed  int
	sent    []string
	created []string
	guild   string
}

func (f *fakeSession) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened++
	return nil
}
func (f *fakeSession) Close() error { f.closed++; return nil }
func (f *fakeSession) Channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if id == "missing" {
		return nil, errors.New("HTTP 404")
	}
	return &discordgo.Channel{ID: id}, nil
}
func (f *fakeSession) ChannelMessageSend(ctx context.Context, id, content string) (*discordgo.Message, error) {
	f.sent = append(f.sent, id+":"+content)
	return &discordgo.Message{ID: "m"}, nil
}
func (f *fakeSession) Guild(ctx context.Context, id string) (*discordgo.Guild, error) {
	return &discordgo.Guild{ID: id}, nil
}
func (f *fakeSession) GuildChannelCreateComplex(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.guild = guildID
	f.created = append(f.created, data.Name)
	return &discordgo.Channel{ID: "c"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAgent(token, guild string, s *fakeSession) *Agent {
	return New(Options{
		Token:   token,
		GuildID: guild,
		Logger:  testLogger(),
		NewClient: func(token string, logger *slog.Logger) (*discordclient.Client, error) {
			return discordclient.NewWithSession(s, logger), nil
		},
	})
}

func enabled(t *testing.T, a *Agent) *Context {
	t.Helper()
	ac, _ := a.InitializeContext(context.Background())
	if err := a.UpdateContext(context.Background(), true, ac); err != nil {
		t.Fatal(err)
	}
	return ac.(*Context)
}

func act(t *testing.T, name string, params any) domain.Action {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	return domain.Action{Name: name, Parameters: raw}
}

func TestExecuteAction_NotLoggedIn(t *testing.T) {
	a := newTestAgent("", "", &fakeSession{})
	dc := enabled(t, a)
	if dc.Client != nil {
		t.Fatal("no client expected without a token")
	}
	res, err := a.ExecuteAction(context.Background(), act(t, "sendMessageInDiscord", map[string]any{"channelId": "1", "message": "x"}), dc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Error != "Use @discord login to log into Discord." {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSendMessage(t *testing.T) {
	s := &fakeSession{}
	a := newTestAgent("tok", "", s)
	dc := enabled(t, a)

	res, _ := a.ExecuteAction(context.Background(), act(t, "sendMessageInDiscord", map[string]any{"channelId": "42", "message": "deploy done"}), dc)
	if res.HTML != "<div>Message sent successfully in Discord...</div>" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(s.sent) != 1 || s.sent[0] != "42:deploy done" {
		t.Fatalf("unexpected sends %v", s.sent)
	}

	res, _ = a.ExecuteAction(context.Background(), act(t, "sendMessageInDiscord", map[string]any{"channelId": "missing", "message": "x"}), dc)
	if res.Error != "Error encountered when sending message in Discord!" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCreateChannel_DefaultGuild(t *testing.T) {
	s := &fakeSession{}
	a := newTestAgent("tok", "guild-1", s)
	dc := enabled(t, a)

	res, _ := a.ExecuteAction(context.Background(), act(t, "createChannelInDiscord", map[string]any{"channelName": "ops"}), dc)
	if res.IsError() {
		t.Fatalf("unexpected error %+v", res)
	}
	if s.guild != "guild-1" || len(s.created) != 1 || s.created[0] != "ops" {
		t.Fatalf("unexpected create: guild=%q names=%v", s.guild, s.created)
	}

	a.ExecuteAction(context.Background(), act(t, "createChannelInDiscord", map[string]any{"guildId": "guild-2", "channelName": "dev"}), dc)
	if s.guild != "guild-2" {
		t.Fatalf("explicit guild should win, got %q", s.guild)
	}
}

func TestCreateChannel_NoGuild(t *testing.T) {
	s := &fakeSession{}
	a := newTestAgent("tok", "", s)
	dc := enabled(t, a)

	res, _ := a.ExecuteAction(context.Background(), act(t, "createChannelInDiscord", map[string]any{"channelName": "ops"}), dc)
	if !res.IsError() {
		t.Fatal("expected error without a guild")
	}
	if len(s.created) != 0 {
		t.Fatal("no create expected without a guild")
	}
}

func TestExecuteAction_UnknownActionIsFatal(t *testing.T) {
	a := newTestAgent("tok", "", &fakeSession{})
	dc := enabled(t, a)
	_, err := a.ExecuteAction(context.Background(), domain.Action{Name: "banUser"}, dc)
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestLoginCommand(t *testing.T) {
	s := &fakeSession{}
	a := newTestAgent("tok", "", s)
	ac, _ := a.InitializeContext(context.Background())

	res, err := a.ExecuteCommand(context.Background(), "login", nil, ac)
	if err != nil || res.IsError() {
		t.Fatalf("expected login success, got %+v, %v", res, err)
	}

	res, err = a.ExecuteCommand(context.Background(), "", nil, ac)
	if err != nil || res.IsError() {
		t.Fatalf("second login should succeed on the open session, got %+v, %v", res, err)
	}
	if s.opened != 1 {
		t.Fatalf("expected one gateway open, got %d", s.opened)
	}
}

func TestLoginCommand_Failure(t *testing.T) {
	s := &fakeSession{openErr: errors.New("4004: authentication failed")}
	a := newTestAgent("tok", "", s)
	ac, _ := a.InitializeContext(context.Background())

	res, _ := a.ExecuteCommand(context.Background(), "login", nil, ac)
	if !res.IsError() || !strings.Contains(res.Error, "authentication failed") {
		t.Fatalf("expected login failure to be reported, got %+v", res)
	}

	s.openErr = nil
	res, _ = a.ExecuteCommand(context.Background(), "login", nil, ac)
	if res.IsError() || s.opened != 1 {
		t.Fatalf("expected retry to log in, got %+v opened=%d", res, s.opened)
	}
}

func TestUpdateContext_ReenableClosesPreviousSession(t *testing.T) {
	s := &fakeSession{}
	a := newTestAgent("tok", "", s)
	dc := enabled(t, a)
	if _, err := a.ExecuteCommand(context.Background(), "login", nil, dc); err != nil {
		t.Fatal(err)
	}
	first := dc.Client

	if err := a.UpdateContext(context.Background(), true, dc); err != nil {
		t.Fatal(err)
	}
	if s.closed != 1 {
		t.Fatalf("expected previous session closed, got %d closes", s.closed)
	}
	if first.IsOpen() {
		t.Fatal("previous client should no longer be open")
	}
	if dc.Client == first {
		t.Fatal("expected a fresh client")
	}

	if err := a.UpdateContext(context.Background(), false, dc); err != nil {
		t.Fatal(err)
	}
	if s.closed != 2 || dc.Client != nil {
		t.Fatalf("disable should close and clear the client, closed=%d", s.closed)
	}
}

func TestLoginCommand_NoToken(t *testing.T) {
	a := newTestAgent("", "", &fakeSession{})
	ac, _ := a.InitializeContext(context.Background())
	res, _ := a.ExecuteCommand(context.Background(), "login", nil, ac)
	if res.Error != noToken {
		t.Fatalf("unexpected result %+v", res)
	}
}
