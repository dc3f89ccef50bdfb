package discord

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type fakeSession struct {
	openErr error
	opened  int
	closed  int

	channels map[string]*discordgo.Channel
	guilds   map[string]*discordgo.Guild

	sendErr error
	sent    []string

	createErr error
	created   []discordgo.GuildChannelCreateData
}

func (f *fakeSession) Open() error  { f.opened++; return f.openErr }
func (f *fakeSession) Close() error { f.closed++; return nil }

func (f *fakeSession) Channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return nil, errors.New("HTTP 404 Not Found")
}

func (f *fakeSession) ChannelMessageSend(ctx context.Context, id, content string) (*discordgo.Message, error) {
	f.sent = append(f.sent, id+":"+content)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &discordgo.Message{ID: "m1", ChannelID: id, Content: content}, nil
}

func (f *fakeSession) Guild(ctx context.Context, id string) (*discordgo.Guild, error) {
	if g, ok := f.guilds[id]; ok {
		return g, nil
	}
	return nil, errors.New("HTTP 404 Not Found")
}

func (f *fakeSession) GuildChannelCreateComplex(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.created = append(f.created, data)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &discordgo.Channel{ID: "new", GuildID: guildID, Name: data.Name}, nil
}

var _ Session = (*fakeSession)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFake() *fakeSession {
	return &fakeSession{
		channels: map[string]*discordgo.Channel{"100": {ID: "100", Name: "general"}},
		guilds:   map[string]*discordgo.Guild{"900": {ID: "900", Name: "home"}},
	}
}

func TestIsInitialized(t *testing.T) {
	if !NewWithSession(newFake(), testLogger()).IsInitialized() {
		t.Fatal("constructed client should be initialized")
	}
	var c *Client
	if c.IsInitialized() {
		t.Fatal("nil client should not be initialized")
	}
}

func TestInitialize(t *testing.T) {
	f := newFake()
	f.openErr = errors.New("authentication failed")
	c := NewWithSession(f, testLogger())
	if err := c.Initialize(context.Background()); err == nil {
		t.Fatal("expected open error to be returned")
	}
	if c.IsOpen() {
		t.Fatal("failed open should leave the gateway closed")
	}

	f.openErr = nil
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsOpen() || f.opened != 2 {
		t.Fatalf("expected open after 2 attempts, got open=%v opened=%d", c.IsOpen(), f.opened)
	}
}

func TestInitialize_AlreadyOpen(t *testing.T) {
	f := newFake()
	c := NewWithSession(f, testLogger())
	for i := 0; i < 3; i++ {
		if err := c.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize %d: %v", i, err)
		}
	}
	if f.opened != 1 {
		t.Fatalf("expected a single gateway open, got %d", f.opened)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.IsOpen() || f.closed != 1 {
		t.Fatalf("expected closed gateway, got open=%v closed=%d", c.IsOpen(), f.closed)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.opened != 2 {
		t.Fatalf("expected reopen after close, got %d opens", f.opened)
	}
}

func TestSendMessage(t *testing.T) {
	f := newFake()
	c := NewWithSession(f, testLogger())

	if !c.SendMessage(context.Background(), "100", "hello") {
		t.Fatal("expected send to succeed")
	}
	if len(f.sent) != 1 || f.sent[0] != "100:hello" {
		t.Fatalf("unexpected sends: %v", f.sent)
	}
}

func TestSendMessage_MissingChannel(t *testing.T) {
	f := newFake()
	c := NewWithSession(f, testLogger())

	if c.SendMessage(context.Background(), "404", "hello") {
		t.Fatal("expected missing channel to fail")
	}
	if len(f.sent) != 0 {
		t.Fatal("no message should be sent to a missing channel")
	}
}

func TestSendMessage_SendError(t *testing.T) {
	f := newFake()
	f.sendErr = errors.New("missing access")
	c := NewWithSession(f, testLogger())

	if c.SendMessage(context.Background(), "100", "hello") {
		t.Fatal("expected send error to return false")
	}
}

func TestCreateChannel_Public(t *testing.T) {
	f := newFake()
	c := NewWithSession(f, testLogger())

	if !c.CreateChannel(context.Background(), "900", "announcements", false) {
		t.Fatal("expected create to succeed")
	}
	if len(f.created) != 1 {
		t.Fatalf("expected one create, got %d", len(f.created))
	}
	got := f.created[0]
	if got.Name != "announcements" || got.Type != discordgo.ChannelTypeGuildText {
		t.Fatalf("unexpected create data: %+v", got)
	}
	if len(got.PermissionOverwrites) != 0 {
		t.Fatal("public channel should carry no overwrites")
	}
}

func TestCreateChannel_PrivateDeniesEveryone(t *testing.T) {
	f := newFake()
	c := NewWithSession(f, testLogger())

	if !c.CreateChannel(context.Background(), "900", "secret", true) {
		t.Fatal("expected create to succeed")
	}
	ow := f.created[0].PermissionOverwrites
	if len(ow) != 1 {
		t.Fatalf("expected one overwrite, got %d", len(ow))
	}
	if ow[0].ID != "900" || ow[0].Type != discordgo.PermissionOverwriteTypeRole {
		t.Fatalf("overwrite should target the default role: %+v", ow[0])
	}
	if ow[0].Deny != discordgo.PermissionViewChannel {
		t.Fatalf("expected VIEW_CHANNEL denied, got %d", ow[0].Deny)
	}
}

func TestCreateChannel_MissingGuild(t *testing.T) {
	f := newFake()
	c := NewWithSession(f, testLogger())

	if c.CreateChannel(context.Background(), "404", "x", false) {
		t.Fatal("expected missing guild to fail")
	}
	if len(f.created) != 0 {
		t.Fatal("no create call expected for a missing guild")
	}
}

func TestCreateChannel_APIError(t *testing.T) {
	f := newFake()
	f.createErr = errors.New("missing permissions")
	c := NewWithSession(f, testLogger())

	if c.CreateChannel(context.Background(), "900", "x", false) {
		t.Fatal("expected API error to return false")
	}
}
