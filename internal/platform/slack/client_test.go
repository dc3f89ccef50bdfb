package slack

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

// fakeAPI records every call made by the client.
type fakeAPI struct {
	authErrs  []error // consumed in order; nil once exhausted
	authCalls int

	channels  []Channel
	listErr   error
	listCalls int

	postErr   error
	posted    []string
	postedAtt [][]slack.Attachment

	createErr error
	created   []string
	private   []bool
}

func (f *fakeAPI) AuthTest(ctx context.Context) error {
	f.authCalls++
	if len(f.authErrs) == 0 {
		return nil
	}
	err := f.authErrs[0]
	f.authErrs = f.authErrs[1:]
	return err
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]Channel, error) {
	f.listCalls++
	return f.channels, f.listErr
}

func (f *fakeAPI) PostMessage(ctx context.Context, channelID, text string, attachments []slack.Attachment) error {
	f.posted = append(f.posted, channelID+":"+text)
	f.postedAtt = append(f.postedAtt, attachments)
	return f.postErr
}

func (f *fakeAPI) CreateConversation(ctx context.Context, name string, isPrivate bool) error {
	f.created = append(f.created, name)
	f.private = append(f.private, isPrivate)
	return f.createErr
}

var _ API = (*fakeAPI)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestIsInitialized_TracksToken(t *testing.T) {
	if NewWithAPI("", &fakeAPI{}, testLogger()).IsInitialized() {
		t.Fatal("client without token should not be initialized")
	}
	if !NewWithAPI("xoxb-1", &fakeAPI{}, testLogger()).IsInitialized() {
		t.Fatal("client with token should be initialized")
	}
	var nilClient *Client
	if nilClient.IsInitialized() {
		t.Fatal("nil client should not be initialized")
	}
}

func TestInitialize_RetriesExactlyOnce(t *testing.T) {
	boom := errors.New("invalid_auth")
	api := &fakeAPI{authErrs: []error{boom, boom, boom}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if err := c.Initialize(context.Background(), true); err == nil {
		t.Fatal("expected auth failure")
	}
	if api.authCalls != 2 {
		t.Fatalf("expected 2 auth attempts, got %d", api.authCalls)
	}
}

func TestInitialize_RetrySucceeds(t *testing.T) {
	api := &fakeAPI{authErrs: []error{errors.New("transient")}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if err := c.Initialize(context.Background(), true); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if api.authCalls != 2 {
		t.Fatalf("expected 2 auth attempts, got %d", api.authCalls)
	}
}

func TestInitialize_NoRetry(t *testing.T) {
	api := &fakeAPI{authErrs: []error{errors.New("invalid_auth")}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if err := c.Initialize(context.Background(), false); err == nil {
		t.Fatal("expected auth failure")
	}
	if api.authCalls != 1 {
		t.Fatalf("expected 1 auth attempt, got %d", api.authCalls)
	}
}

func TestFindChannelIDByName_SubstringMatch(t *testing.T) {
	api := &fakeAPI{channels: []Channel{
		{ID: "C1", Name: "random"},
		{ID: "C2", Name: "team-general-chat"},
		{ID: "C3", Name: "general"},
	}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	id := c.FindChannelIDByName(context.Background(), "General")
	if id != "C2" {
		t.Fatalf("expected first substring match C2, got %q", id)
	}
	if api.listCalls != 1 {
		t.Fatalf("expected one listing call, got %d", api.listCalls)
	}
}

func TestFindChannelIDByName_NormalizedName(t *testing.T) {
	api := &fakeAPI{channels: []Channel{{ID: "C9", Name: "Ops Room", NameNormalized: "ops-room"}}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if id := c.FindChannelIDByName(context.Background(), "ops-room"); id != "C9" {
		t.Fatalf("expected C9, got %q", id)
	}
}

func TestFindChannelIDByName_NoMatch(t *testing.T) {
	api := &fakeAPI{channels: []Channel{{ID: "C1", Name: "random"}}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if id := c.FindChannelIDByName(context.Background(), "general"); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestFindChannelIDByName_ListError(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("ratelimited")}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if id := c.FindChannelIDByName(context.Background(), "general"); id != "" {
		t.Fatalf("expected empty id on list error, got %q", id)
	}
}

func TestFindChannelIDByName_InvalidNameSkipsAPI(t *testing.T) {
	api := &fakeAPI{channels: []Channel{{ID: "C1", Name: "general"}}}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if id := c.FindChannelIDByName(context.Background(), "!!!"); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
	if api.listCalls != 0 {
		t.Fatalf("expected no listing call, got %d", api.listCalls)
	}
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := NewWithAPI("xoxb-1", api, testLogger())

	att := []slack.Attachment{{Title: "report"}}
	if !c.SendMessage(context.Background(), "C1", "hi", att) {
		t.Fatal("expected send to succeed")
	}
	if len(api.posted) != 1 || api.posted[0] != "C1:hi" {
		t.Fatalf("unexpected posts: %v", api.posted)
	}
	if len(api.postedAtt[0]) != 1 || api.postedAtt[0][0].Title != "report" {
		t.Fatalf("attachments not forwarded: %+v", api.postedAtt[0])
	}

	api.postErr = errors.New("channel_not_found")
	if c.SendMessage(context.Background(), "C1", "hi", nil) {
		t.Fatal("expected send failure to return false")
	}
}

func TestCreateChannel_SanitizesName(t *testing.T) {
	api := &fakeAPI{}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if !c.CreateChannel(context.Background(), "Team Updates!", true) {
		t.Fatal("expected create to succeed")
	}
	if len(api.created) != 1 {
		t.Fatalf("expected exactly one create call, got %d", len(api.created))
	}
	if api.created[0] != "teamupdates" {
		t.Fatalf("expected sanitized name 'teamupdates', got %q", api.created[0])
	}
	if !api.private[0] {
		t.Fatal("expected private flag to be forwarded")
	}
}

func TestCreateChannel_InvalidNameMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if c.CreateChannel(context.Background(), "$$$ ###", false) {
		t.Fatal("expected all-invalid name to be rejected")
	}
	if c.CreateChannel(context.Background(), strings.Repeat("a", 81), false) {
		t.Fatal("expected 81-char name to be rejected")
	}
	if len(api.created) != 0 {
		t.Fatalf("expected zero create calls, got %d", len(api.created))
	}
}

func TestCreateChannel_APIError(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("name_taken")}
	c := NewWithAPI("xoxb-1", api, testLogger())

	if c.CreateChannel(context.Background(), "general", false) {
		t.Fatal("expected API error to return false")
	}
}

func TestSanitizeChannelName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"General", "general", true},
		{"my_team-2024", "my_team-2024", true},
		{"Team Updates!", "teamupdates", true},
		{"", "", false},
		{"!!!", "", false},
		{strings.Repeat("b", 80), strings.Repeat("b", 80), true},
		{strings.Repeat("b", 81), "", false},
	}
	for _, tt := range tests {
		got, ok := SanitizeChannelName(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SanitizeChannelName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
