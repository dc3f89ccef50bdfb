package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"agentlink/internal/domain"
)

// Config is the root configuration for agentlink.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Channels  ChannelsConfig  `json:"channels"`
	Agents    AgentsConfig    `json:"agents"`
	WebSocket WebSocketConfig `json:"websocket"`
	Audit     AuditConfig     `json:"audit"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional rotating log file
}

type ChannelsConfig struct {
	Slack   SlackConfig   `json:"slack"`
	Discord DiscordConfig `json:"discord"`
	Teams   TeamsConfig   `json:"teams"`
}

type SlackConfig struct {
	BotToken string `json:"botToken"` // falls back to SLACK_BOT_TOKEN
}

type DiscordConfig struct {
	Token   string `json:"token"`             // falls back to DISCORD_BOT_TOKEN
	GuildID string `json:"guildId,omitempty"` // default guild for createChannelInDiscord
}

// TeamsConfig configures Microsoft Graph access for the Teams agent.
type TeamsConfig struct {
	TenantID     string   `json:"tenantId"`
	ClientID     string   `json:"clientId"`
	Scopes       []string `json:"scopes"`
	Token        string   `json:"token,omitempty"` // pre-issued bearer token, skips device login
	BrowserLogin bool     `json:"browserLogin"`    // open the device login page in a visible browser
	ProfileDir   string   `json:"profileDir,omitempty"`
	GraphBaseURL string   `json:"graphBaseUrl"`
	GraphRetries int      `json:"graphRetries,omitempty"` // GET retries on 429/5xx; POSTs are never resent
}

// AgentsConfig configures which agents the dispatcher can load and how.
type AgentsConfig struct {
	// ExecMode enables separate-process agents. AGENTLINK_EXECMODE=0 disables it.
	ExecMode    bool                 `json:"execMode"`
	ModulePaths []string             `json:"modulePaths,omitempty"` // directories searched for <module>/agent/manifest.*
	Entries     map[string]AgentInfo `json:"entries"`
}

// AgentInfo is either an inline manifest (Type "") or a named module.
type AgentInfo struct {
	Type     string   `json:"type,omitempty"`     // "" | "module"
	Name     string   `json:"name,omitempty"`     // module name
	ExecMode string   `json:"execMode,omitempty"` // "separate" (default) | "dispatcher"
	Imports  []string `json:"imports,omitempty"`

	domain.Manifest
}

const (
	AgentTypeModule    = "module"
	ExecModeSeparate   = "separate"
	ExecModeDispatcher = "dispatcher"

	// ExecModeEnv set to "0" forces every agent in-process.
	ExecModeEnv = "AGENTLINK_EXECMODE"
)

// IsModule reports whether the entry names an external module.
func (a AgentInfo) IsModule() bool { return a.Type == AgentTypeModule }

// WebSocketConfig configures the keep-alive WebSocket helper.
type WebSocketConfig struct {
	URL              string `json:"url"`
	Source           string `json:"source"`
	KeepAliveSeconds int    `json:"keepAliveSeconds"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// DefaultConfigDir returns the default config directory (~/.agentlink).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentlink"
	}
	return filepath.Join(home, ".agentlink")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads path for runtime use: ${VAR} placeholders are expanded and
// credentials missing from the file are taken from the environment.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	cfg, err := decode([]byte(ExpandEnvVars(string(data))))
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Channels.Teams.ProfileDir = ExpandPath(cfg.Channels.Teams.ProfileDir)
	for i, p := range cfg.Agents.ModulePaths {
		cfg.Agents.ModulePaths[i] = ExpandPath(p)
	}
	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFile reads path exactly as written, with no placeholder expansion and
// no environment fallbacks. Use it when the result may be saved back.
func LoadFile(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateExpanded validates cfg as Load would see it after placeholder
// expansion, leaving cfg untouched.
func ValidateExpanded(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	expanded, err := decode([]byte(ExpandEnvVars(string(data))))
	if err != nil {
		return err
	}
	return Validate(expanded)
}

// decode unmarshals data over Defaults. Agent entries are replaced, not
// merged: a file that lists agents gets exactly those agents.
func decode(data []byte) (*Config, error) {
	cfg := Defaults()
	defaultEntries := cfg.Agents.Entries
	cfg.Agents.Entries = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Agents.Entries == nil {
		cfg.Agents.Entries = defaultEntries
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Defaults with environment
// credentials when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); errors.Is(err, os.ErrNotExist) {
		cfg := Defaults()
		ApplyEnv(cfg)
		return cfg, nil
	}
	return Load(path)
}

// ApplyEnv fills credentials left empty in the file from the process
// environment and applies the exec mode override.
func ApplyEnv(cfg *Config) {
	if cfg.Channels.Slack.BotToken == "" {
		cfg.Channels.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if cfg.Channels.Discord.Token == "" {
		cfg.Channels.Discord.Token = os.Getenv("DISCORD_BOT_TOKEN")
	}
	if cfg.Channels.Teams.Token == "" {
		cfg.Channels.Teams.Token = os.Getenv("TEAMS_GRAPH_TOKEN")
	}
	if cfg.Channels.Teams.TenantID == "" {
		cfg.Channels.Teams.TenantID = os.Getenv("MSGRAPH_APP_TENANTID")
	}
	if cfg.Channels.Teams.ClientID == "" {
		cfg.Channels.Teams.ClientID = os.Getenv("MSGRAPH_APP_CLIENTID")
	}
	if os.Getenv(ExecModeEnv) == "0" {
		cfg.Agents.ExecMode = false
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Channels.Teams.GraphBaseURL == "" {
		errs = append(errs, "channels.teams.graphBaseUrl is required")
	}
	if cfg.Channels.Teams.GraphRetries < 0 {
		errs = append(errs, "channels.teams.graphRetries must be >= 0")
	}
	if cfg.WebSocket.KeepAliveSeconds < 1 {
		errs = append(errs, "websocket.keepAliveSeconds must be >= 1")
	}
	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}

	for name, info := range cfg.Agents.Entries {
		switch info.Type {
		case "":
		case AgentTypeModule:
			if info.Name == "" {
				errs = append(errs, fmt.Sprintf("agents.entries.%s: module name is required", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("agents.entries.%s: unknown type %q", name, info.Type))
		}
		switch info.ExecMode {
		case "", ExecModeSeparate, ExecModeDispatcher:
		default:
			errs = append(errs, fmt.Sprintf("agents.entries.%s: execMode must be separate or dispatcher", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
