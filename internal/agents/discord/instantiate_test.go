package discord

import (
	"testing"

	"agentlink/internal/config"
	"agentlink/internal/loader"
)

func TestInstantiate_UsesConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Channels.Discord.Token = "discord-config"
	cfg.Channels.Discord.GuildID = "42"

	a, ok := Instantiate(loader.Deps{Config: cfg, Logger: testLogger()}).(*Agent)
	if !ok {
		t.Fatal("expected *Agent")
	}
	if a.opts.Token != "discord-config" || a.opts.GuildID != "42" {
		t.Fatalf("unexpected options %+v", a.opts)
	}
}
