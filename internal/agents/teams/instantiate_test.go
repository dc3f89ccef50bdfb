package teams

import (
	"testing"

	"agentlink/internal/config"
	"agentlink/internal/loader"
)

func TestInstantiate_UsesConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Channels.Teams.ClientID = "client-1"

	a, ok := Instantiate(loader.Deps{Config: cfg, Logger: testLogger()}).(*Agent)
	if !ok {
		t.Fatal("expected *Agent")
	}
	if a.opts.Teams.ClientID != "client-1" {
		t.Fatalf("expected teams config to flow through, got %+v", a.opts.Teams)
	}
}
