package config

import (
	"os"
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// EnvPrefix scopes environment overrides, e.g. AIRPROJECT_MAX_TURNS.
const EnvPrefix = "airproject"

// Keys shared by cobra flags, environment variables and project settings.
const (
	KeyDir        = "dir"
	KeyProvider   = "provider"
	KeyModel      = "model"
	KeyBaseURL    = "base-url"
	KeyFormat     = "format"
	KeyMaxTurns   = "max-turns"
	KeyMaxTokens  = "max-tokens"
	KeyMaxRetries = "max-retries"
	KeyStream     = "stream"
	KeyVerbose    = "verbose"
)

// Config holds all runtime configuration for a command.
type Config struct {
	Dir        string
	Provider   string
	Format     string
	MaxTurns   int
	MaxTokens  int
	MaxRetries int
	Stream     bool
	Verbose    bool

	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	return Config{
		Dir:        ".",
		Provider:   ProviderOpenAI,
		Format:     "text",
		MaxTurns:   10,
		MaxTokens:  4096,
		MaxRetries: 2,
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	if provider == ProviderAnthropic {
		return "claude-3-opus-20240229"
	}
	return "gpt-4o"
}

// APIKeyEnv names the environment variable holding the provider credential.
func APIKeyEnv(provider string) string {
	if provider == ProviderAnthropic {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func envPrefixFor(provider string) string {
	if provider == ProviderAnthropic {
		return "ANTHROPIC_"
	}
	return "OPENAI_"
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.Dir = strings.TrimSpace(cfg.Dir)
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)

	if cfg.Dir == "" {
		cfg.Dir = defaults.Dir
	}
	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	if cfg.Format == "" {
		cfg.Format = defaults.Format
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg
}

// Validate checks the settings needed before any model request is made.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return apperr.New(apperr.Config, "unsupported provider %q (want %s or %s)", c.Provider, ProviderOpenAI, ProviderAnthropic)
	}
	if c.APIKey == "" {
		return apperr.New(apperr.Config, "%s is not set", APIKeyEnv(c.Provider))
	}
	if c.Model == "" {
		return apperr.New(apperr.Config, "model is not set")
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment lookup.
// Flags are bound by the caller.
func NewViper() *viper.Viper {
	defaults := DefaultConfig()
	v := viper.New()
	v.SetDefault(KeyDir, defaults.Dir)
	v.SetDefault(KeyProvider, defaults.Provider)
	v.SetDefault(KeyFormat, defaults.Format)
	v.SetDefault(KeyMaxTurns, defaults.MaxTurns)
	v.SetDefault(KeyMaxTokens, defaults.MaxTokens)
	v.SetDefault(KeyMaxRetries, defaults.MaxRetries)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration from v. Project settings sit below flags
// and environment overrides; provider credentials and the OPENAI_/ANTHROPIC_
// base URL and model come from the process environment.
func Load(v *viper.Viper, settings map[string]any) (Config, error) {
	if len(settings) > 0 {
		if err := v.MergeConfigMap(settings); err != nil {
			return Config{}, errors.Wrap(err, "merge project settings")
		}
	}

	cfg := Config{
		Dir:        v.GetString(KeyDir),
		Provider:   v.GetString(KeyProvider),
		Format:     v.GetString(KeyFormat),
		MaxTurns:   v.GetInt(KeyMaxTurns),
		MaxTokens:  v.GetInt(KeyMaxTokens),
		MaxRetries: v.GetInt(KeyMaxRetries),
		Stream:     v.GetBool(KeyStream),
		Verbose:    v.GetBool(KeyVerbose),
		BaseURL:    v.GetString(KeyBaseURL),
		Model:      v.GetString(KeyModel),
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	prefix := envPrefixFor(cfg.Provider)
	cfg.APIKey = os.Getenv(APIKeyEnv(cfg.Provider))
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = os.Getenv(prefix + "BASE_URL")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = os.Getenv(prefix + "MODEL")
	}
	return Normalize(cfg), nil
}
