package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Channels: ChannelsConfig{
			Teams: TeamsConfig{
				Scopes:       defaultGraphScopes(),
				GraphBaseURL: "https://graph.microsoft.com/v1.0",
			},
		},
		Agents: AgentsConfig{
			ExecMode: true,
			Entries: map[string]AgentInfo{
				"slack":   {Type: AgentTypeModule, Name: "slack"},
				"discord": {Type: AgentTypeModule, Name: "discord"},
				"teams":   {Type: AgentTypeModule, Name: "teams"},
			},
		},
		WebSocket: WebSocketConfig{
			URL:              "ws://localhost:8080/",
			Source:           "agentlink",
			KeepAliveSeconds: 20,
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  "~/.agentlink/audit.db",
		},
	}
}

func defaultGraphScopes() []string {
	return []string{
		"offline_access",
		"User.Read",
		"User.ReadBasic.All",
		"Chat.Create",
		"Chat.ReadWrite",
		"ChatMessage.Send",
	}
}
