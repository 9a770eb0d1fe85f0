package config

import (
	"os"
	"path/filepath"
	"testing"
)

// useTempConfig points the package at a fresh config directory for the test
func useTempConfig(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	oldConfigDir := configDir
	oldConfigFile := configFile
	configDir = tmpDir
	configFile = filepath.Join(tmpDir, "config.json")
	current = nil

	t.Cleanup(func() {
		configDir = oldConfigDir
		configFile = oldConfigFile
		current = nil
	})
	return tmpDir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range settings {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "short key",
			key:      "abc",
			expected: "****",
		},
		{
			name:     "exactly 8 chars",
			key:      "12345678",
			expected: "****",
		},
		{
			name:     "long key",
			key:      "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskKey(tt.key)
			if result != tt.expected {
				t.Errorf("maskKey(%q) = %q, want %q", tt.key, result, tt.expected)
			}
		})
	}
}

func TestConfigLoadDefaults(t *testing.T) {
	useTempConfig(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("defaults = %q/%q, want info/console", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestConfigLoadSave(t *testing.T) {
	tmpDir := useTempConfig(t)

	cfg := &Config{
		OpenRouterKey: "sk-or-test-key",
		AnthropicKey:  "sk-ant-test",
		OllamaURL:     "http://gpu-box:11434",
	}
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "config.json"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	current = nil
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.OpenRouterKey != cfg.OpenRouterKey {
		t.Errorf("OpenRouterKey = %q, want %q", loaded.OpenRouterKey, cfg.OpenRouterKey)
	}
	if loaded.AnthropicKey != cfg.AnthropicKey {
		t.Errorf("AnthropicKey = %q, want %q", loaded.AnthropicKey, cfg.AnthropicKey)
	}
	if loaded.OllamaURL != cfg.OllamaURL {
		t.Errorf("OllamaURL = %q, want %q", loaded.OllamaURL, cfg.OllamaURL)
	}
}

func TestConfigLoadInvalidJSON(t *testing.T) {
	tmpDir := useTempConfig(t)
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() should fail on malformed config")
	}
}

func TestConfigSet(t *testing.T) {
	useTempConfig(t)

	tests := []struct {
		key   string
		value string
		check func(*Config) string
	}{
		{"openrouter", "or-key", func(c *Config) string { return c.OpenRouterKey }},
		{"openai_api_key", "oa-key", func(c *Config) string { return c.OpenAIKey }},
		{"anthropic", "ant-key", func(c *Config) string { return c.AnthropicKey }},
		{"grok", "xai-key", func(c *Config) string { return c.XAIKey }},
		{"openclaw", "claw-token", func(c *Config) string { return c.OpenClawToken }},
		{"lmstudio_url", "http://localhost:1234/v1", func(c *Config) string { return c.LMStudioURL }},
		{"db", "/tmp/rt.db", func(c *Config) string { return c.DatabasePath }},
		{"nats", "nats://localhost:4222", func(c *Config) string { return c.NATSURL }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := Set(tt.key, tt.value); err != nil {
				t.Fatalf("Set(%q) error: %v", tt.key, err)
			}
			if got := tt.check(Get()); got != tt.value {
				t.Errorf("after Set(%q), value = %q, want %q", tt.key, got, tt.value)
			}
		})
	}

	if err := Set("invalid_key", "value"); err == nil {
		t.Error("Set() with invalid key should return error")
	}
}

func TestConfigDelete(t *testing.T) {
	useTempConfig(t)

	if err := Set("openai", "test-key"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := Delete("openai"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if Get().OpenAIKey != "" {
		t.Errorf("OpenAIKey = %q, want empty", Get().OpenAIKey)
	}
	if err := Delete("nope"); err == nil {
		t.Error("Delete() with invalid key should return error")
	}
}

func TestCredentialsEnvFallback(t *testing.T) {
	useTempConfig(t)
	clearEnv(t)

	creds := Credentials{}
	if _, ok := creds.Credential("openai"); ok {
		t.Error("expected no openai credential")
	}

	t.Setenv("OPENAI_API_KEY", "env-openai-key")
	key, ok := creds.Credential("openai")
	if !ok || key != "env-openai-key" {
		t.Errorf("Credential(openai) = %q, %v, want env-openai-key", key, ok)
	}

	// Config file takes precedence over the environment
	if err := Set("openai", "file-openai-key"); err != nil {
		t.Fatal(err)
	}
	if key, _ := creds.Credential("openai"); key != "file-openai-key" {
		t.Errorf("Credential(openai) = %q, want file-openai-key", key)
	}

	if _, ok := creds.Credential("ollama"); ok {
		t.Error("ollama has no credential")
	}
}

func TestEndpoints(t *testing.T) {
	useTempConfig(t)
	clearEnv(t)

	if len(Endpoints()) != 0 {
		t.Errorf("Endpoints() = %v, want empty", Endpoints())
	}

	t.Setenv("OLLAMA_URL", "http://env-host:11434")
	if err := Set("openclaw_url", "http://claw:18789"); err != nil {
		t.Fatal(err)
	}

	endpoints := Endpoints()
	if endpoints["ollama"] != "http://env-host:11434" {
		t.Errorf("ollama endpoint = %q", endpoints["ollama"])
	}
	if endpoints["openclaw"] != "http://claw:18789" {
		t.Errorf("openclaw endpoint = %q", endpoints["openclaw"])
	}
	if _, ok := endpoints["openai"]; ok {
		t.Error("secret keys must not appear in endpoints")
	}
}

func TestEntries(t *testing.T) {
	useTempConfig(t)
	clearEnv(t)

	if err := Set("anthropic", "sk-ant-1234567890"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XAI_API_KEY", "xai-abcdefghijkl")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	byName := make(map[string]Entry)
	for _, e := range Entries() {
		byName[e.Name] = e
	}
	if len(byName) != len(settings) {
		t.Fatalf("Entries() returned %d settings, want %d", len(byName), len(settings))
	}

	tests := []struct {
		name    string
		value   string
		fromEnv bool
	}{
		{"anthropic_api_key", "sk-a...7890", false},
		{"xai_api_key", "xai-...ijkl", true},
		{"nats_url", "nats://localhost:4222", true},
		{"openai_api_key", "", false},
	}
	for _, tt := range tests {
		e := byName[tt.name]
		if e.Value != tt.value || e.FromEnv != tt.fromEnv {
			t.Errorf("%s = %q (env %v), want %q (env %v)", tt.name, e.Value, e.FromEnv, tt.value, tt.fromEnv)
		}
	}
}

func TestDescribe(t *testing.T) {
	useTempConfig(t)
	clearEnv(t)

	e, ok := Describe("grok")
	if !ok {
		t.Fatal("Describe(grok) not found")
	}
	if e.Name != "xai_api_key" || e.Env != "XAI_API_KEY" || !e.Secret {
		t.Errorf("Describe(grok) = %+v", e)
	}

	if _, ok := Describe("nope"); ok {
		t.Error("Describe(nope) should fail")
	}
}

func TestDatabasePath(t *testing.T) {
	tmpDir := useTempConfig(t)
	clearEnv(t)

	if got, want := DatabasePath(), filepath.Join(tmpDir, "roundtable.db"); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}

	t.Setenv("ROUNDTABLE_DB", "/var/lib/rt.db")
	if got := DatabasePath(); got != "/var/lib/rt.db" {
		t.Errorf("DatabasePath() = %q, want env override", got)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath() returned empty string")
	}
	if filepath.Base(path) != "config.json" {
		t.Errorf("ConfigPath() = %q, should end with config.json", path)
	}
}
