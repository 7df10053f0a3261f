package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the resolved stockwise configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
	Search  SearchConfig
	Models  ModelsConfig
	Log     LogConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
	Host string
}

type StorageConfig struct {
	DataDir string
}

type LLMConfig struct {
	Enabled   bool
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	APIKey    string
}

type SearchConfig struct {
	ResultLimit int
	ToolTimeout time.Duration
	StopWords   []string // nil keeps the built-in list
}

type ModelsConfig struct {
	Manifest string
}

type LogConfig struct {
	Level  string
	Format string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 9000,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Enabled:   true,
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4.1-mini",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
		},
		Search: SearchConfig{
			ResultLimit: 10,
			ToolTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LLMEnabled reports whether the language model path should be used.
// Without an API key the service runs on the fallback search only.
func (c Config) LLMEnabled() bool {
	return c.LLM.Enabled && c.LLM.APIKey != ""
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel parses Log.Level. Validate guarantees it is known.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	if c.Search.ResultLimit <= 0 {
		return fmt.Errorf("search.result_limit must be positive, got %d", c.Search.ResultLimit)
	}
	return nil
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/stockwise/config.yaml, then STOCKWISE_* environment
// variables, then the platform secret store for secrets still unset.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account()); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

const secretService = "stockwise"

// keychainReader reads secrets from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
