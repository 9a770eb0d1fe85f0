package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration
type Config struct {
	// API Keys
	OpenRouterKey string `json:"openrouter_api_key,omitempty"`
	OpenAIKey     string `json:"openai_api_key,omitempty"`
	AnthropicKey  string `json:"anthropic_api_key,omitempty"`
	XAIKey        string `json:"xai_api_key,omitempty"`
	OpenClawToken string `json:"openclaw_token,omitempty"`

	// Endpoints for self-hosted backends
	OllamaURL   string `json:"ollama_url,omitempty"`
	LMStudioURL string `json:"lmstudio_url,omitempty"`
	OpenClawURL string `json:"openclaw_url,omitempty"`

	// Runtime
	DatabasePath string `json:"database_path,omitempty"`
	LogLevel     string `json:"log_level,omitempty"`
	LogFormat    string `json:"log_format,omitempty"`
	NATSURL      string `json:"nats_url,omitempty"`
}

// setting describes one settable key
type setting struct {
	name    string
	aliases []string
	env     string
	backend string // backend whose credential or endpoint this is
	secret  bool
	field   func(*Config) *string
}

var settings = []setting{
	{name: "openrouter_api_key", aliases: []string{"openrouter"}, env: "OPENROUTER_API_KEY", backend: "openrouter", secret: true,
		field: func(c *Config) *string { return &c.OpenRouterKey }},
	{name: "openai_api_key", aliases: []string{"openai"}, env: "OPENAI_API_KEY", backend: "openai", secret: true,
		field: func(c *Config) *string { return &c.OpenAIKey }},
	{name: "anthropic_api_key", aliases: []string{"anthropic"}, env: "ANTHROPIC_API_KEY", backend: "anthropic", secret: true,
		field: func(c *Config) *string { return &c.AnthropicKey }},
	{name: "xai_api_key", aliases: []string{"xai", "grok"}, env: "XAI_API_KEY", backend: "xai", secret: true,
		field: func(c *Config) *string { return &c.XAIKey }},
	{name: "openclaw_token", aliases: []string{"openclaw"}, env: "OPENCLAW_TOKEN", backend: "openclaw", secret: true,
		field: func(c *Config) *string { return &c.OpenClawToken }},
	{name: "ollama_url", env: "OLLAMA_URL", backend: "ollama",
		field: func(c *Config) *string { return &c.OllamaURL }},
	{name: "lmstudio_url", env: "LMSTUDIO_URL", backend: "lmstudio",
		field: func(c *Config) *string { return &c.LMStudioURL }},
	{name: "openclaw_url", env: "OPENCLAW_URL", backend: "openclaw",
		field: func(c *Config) *string { return &c.OpenClawURL }},
	{name: "database_path", aliases: []string{"db"}, env: "ROUNDTABLE_DB",
		field: func(c *Config) *string { return &c.DatabasePath }},
	{name: "log_level", env: "ROUNDTABLE_LOG_LEVEL",
		field: func(c *Config) *string { return &c.LogLevel }},
	{name: "log_format", env: "ROUNDTABLE_LOG_FORMAT",
		field: func(c *Config) *string { return &c.LogFormat }},
	{name: "nats_url", aliases: []string{"nats"}, env: "NATS_URL",
		field: func(c *Config) *string { return &c.NATSURL }},
}

var (
	configDir  string
	configFile string
	current    *Config
)

func init() {
	// Use ~/.config/roundtable for config
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	configDir = filepath.Join(home, ".config", "roundtable")
	configFile = filepath.Join(configDir, "config.json")
}

// Load reads the config from disk
func Load() (*Config, error) {
	if current != nil {
		return current, nil
	}

	current = &Config{
		LogLevel:  "info",
		LogFormat: "console",
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return current, nil // Return default config
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, current); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return current, nil
}

// Save writes the config to disk
func Save(cfg *Config) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	current = cfg
	return nil
}

// Get returns the current config, loading if necessary
func Get() *Config {
	if current == nil {
		if _, err := Load(); err != nil {
			current = &Config{LogLevel: "info", LogFormat: "console"}
		}
	}
	return current
}

func lookup(key string) (setting, bool) {
	for _, s := range settings {
		if s.name == key {
			return s, true
		}
		for _, alias := range s.aliases {
			if alias == key {
				return s, true
			}
		}
	}
	return setting{}, false
}

// Set updates a config value by key
func Set(key, value string) error {
	s, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	cfg, err := Load()
	if err != nil {
		return err
	}
	*s.field(cfg) = value
	return Save(cfg)
}

// Delete removes a config value
func Delete(key string) error {
	return Set(key, "")
}

// value returns the configured value for s, falling back to its env var
func value(s setting) (string, bool) {
	if v := *s.field(Get()); v != "" {
		return v, false
	}
	if s.env != "" {
		if v := os.Getenv(s.env); v != "" {
			return v, true
		}
	}
	return "", false
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return configFile
}

// Entry is one setting with its effective value
type Entry struct {
	Name    string
	Env     string
	Value   string // masked when Secret
	Secret  bool
	FromEnv bool
}

func entry(s setting) Entry {
	v, fromEnv := value(s)
	if s.secret && v != "" {
		v = maskKey(v)
	}
	return Entry{Name: s.name, Env: s.env, Value: v, Secret: s.secret, FromEnv: fromEnv}
}

// Entries returns every setting in declaration order
func Entries() []Entry {
	result := make([]Entry, 0, len(settings))
	for _, s := range settings {
		result = append(result, entry(s))
	}
	return result
}

// Describe returns the setting named key or one of its aliases
func Describe(key string) (Entry, bool) {
	s, ok := lookup(key)
	if !ok {
		return Entry{}, false
	}
	return entry(s), true
}

// maskKey shows only first 4 and last 4 characters
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Credentials resolves backend credentials from the config file and environment
type Credentials struct{}

// Credential returns the API key or token for backend
func (Credentials) Credential(backend string) (string, bool) {
	for _, s := range settings {
		if s.backend == backend && s.secret {
			v, _ := value(s)
			return v, v != ""
		}
	}
	return "", false
}

// Endpoints returns base URL overrides keyed by backend id
func Endpoints() map[string]string {
	endpoints := make(map[string]string)
	for _, s := range settings {
		if s.backend == "" || s.secret {
			continue
		}
		if v, _ := value(s); v != "" {
			endpoints[s.backend] = v
		}
	}
	return endpoints
}

// DatabasePath returns the sqlite database location
func DatabasePath() string {
	s, _ := lookup("database_path")
	if v, _ := value(s); v != "" {
		return v
	}
	return filepath.Join(configDir, "roundtable.db")
}

// LogSettings returns the configured log level and format
func LogSettings() (level, format string) {
	ls, _ := lookup("log_level")
	fs, _ := lookup("log_format")
	level, _ = value(ls)
	format, _ = value(fs)
	return level, format
}

// NATSURL returns the NATS server URL, empty when the event relay is not configured
func NATSURL() string {
	s, _ := lookup("nats_url")
	v, _ := value(s)
	return v
}

// GetPersonaPaths returns paths to search for persona definition files
// Returns both project-local (.roundtable/personas/) and global (~/.config/roundtable/personas/) paths
func GetPersonaPaths() []string {
	paths := []string{}

	cwd, err := os.Getwd()
	if err == nil {
		paths = append(paths, filepath.Join(cwd, ".roundtable", "personas"))
	}

	paths = append(paths, filepath.Join(configDir, "personas"))

	return paths
}
