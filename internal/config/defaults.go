package config

import "path/filepath"

// Defaults returns a config populated with reasonable defaults.
// Load unmarshals the user's file on top of this, so only keys present in
// the file override the defaults.
func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			Workspace:       "~/workspace",
			LogLevel:        "info",
			MaxIterations:   40,
			DefaultProvider: "openai",
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      false,
				APIBase:      "https://api.openai.com/v1",
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434/v1",
				DefaultModel: "qwen3:8b",
			},
		},
		Memory: MemoryConfig{
			Enabled:                   true,
			DBPath:                    filepath.Join(dir, "memory.db"),
			MaxHistoryPerConversation: 50,
			RetentionDays:             90,
		},
		Safety: SafetyConfig{
			AuditLog:  true,
			PolicyDir: filepath.Join(dir, "policies"),
		},
		Tools: ToolsConfig{
			Shell: ShellToolConfig{
				Timeout:        120,
				MaxOutputBytes: 64 * 1024,
			},
		},
		Status: StatusConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8787,
		},
	}
}
