package teams

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type recordingPage struct {
	opened chan string
}

func (p *recordingPage) OpenLogin(ctx context.Context, url, code string) error {
	p.opened <- url + " " + code
	<-ctx.Done()
	return nil
}

func TestDeviceCodeAuth_CompletesFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("client_id") != "app-id" {
			t.Errorf("unexpected client_id %q", r.Form.Get("client_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"device_code":"dev-1","user_code":"ABCD-1234","verification_uri":"https://microsoft.com/devicelogin","expires_in":60,"interval":1}`)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("device_code") != "dev-1" {
			t.Errorf("unexpected device_code %q", r.Form.Get("device_code"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var prompt bytes.Buffer
	page := &recordingPage{opened: make(chan string, 1)}
	auth := NewDeviceCodeAuth(DeviceCodeConfig{
		ClientID: "app-id",
		Scopes:   []string{"User.Read"},
		Endpoint: &oauth2.Endpoint{DeviceAuthURL: srv.URL + "/devicecode", TokenURL: srv.URL + "/token"},
		Browser:  page,
		Prompt:   &prompt,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts, err := auth.TokenSource(ctx)
	if err != nil {
		t.Fatalf("device flow: %v", err)
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "graph-token" {
		t.Fatalf("unexpected token %+v, %v", tok, err)
	}
	if !strings.Contains(prompt.String(), "ABCD-1234") {
		t.Fatalf("prompt should show the user code, got %q", prompt.String())
	}

	select {
	case got := <-page.opened:
		if got != "https://microsoft.com/devicelogin ABCD-1234" {
			t.Fatalf("unexpected login page call %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("login page was not opened")
	}
}

func TestDeviceCodeAuth_RequiresClientID(t *testing.T) {
	auth := NewDeviceCodeAuth(DeviceCodeConfig{Logger: testLogger()})
	if _, err := auth.TokenSource(context.Background()); err == nil {
		t.Fatal("expected error without client id")
	}
}
