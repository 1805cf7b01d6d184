// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/converse/lib/llm"
	llmcontext "github.com/bureau-foundation/converse/lib/llm/context"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "CONVERSE_CONFIG"

// Context strategies.
const (
	StrategySummarize = "summarize"
	StrategyTruncate  = "truncate"
	StrategyNone      = "none"
)

// Config is the whole configuration file.
type Config struct {
	// DefaultProvider names the provider used when --provider is not
	// given. Empty means the first usable provider.
	DefaultProvider string `yaml:"default_provider"`

	Providers []ProviderConfig `yaml:"providers"`

	Context ContextConfig `yaml:"context"`

	Sessions SessionsConfig `yaml:"sessions"`
}

// ProviderConfig configures one backend.
type ProviderConfig struct {
	Name string `yaml:"name"`

	// Protocol is one of "openai", "anthropic", or "ollama".
	Protocol string `yaml:"protocol"`

	// APIKey is normally a reference such as ${OPENAI_API_KEY}.
	APIKey string `yaml:"api_key"`

	// APIKeyVariable is the environment variable APIKey referenced,
	// recorded before expansion so error messages can name it.
	APIKeyVariable string `yaml:"-"`

	// BaseURL overrides the protocol's public endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// MaxTokens is the default output cap for requests that set none.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds a whole response; ConnectTimeout bounds
	// establishing the connection. Zero uses the adapter defaults.
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ContextConfig configures history management.
type ContextConfig struct {
	// Strategy is "summarize" (default), "truncate", or "none".
	Strategy string `yaml:"strategy"`

	// BudgetTokens is the history budget. Zero derives it from the
	// model's context window.
	BudgetTokens int `yaml:"budget_tokens"`

	// TriggerRatio is the fraction of the budget at which history is
	// compressed.
	TriggerRatio float64 `yaml:"trigger_ratio"`

	// SystemTokens is the separate allowance for fixed instructions.
	// Zero uses the derived default.
	SystemTokens int `yaml:"system_tokens"`

	// SummaryModel overrides the model used for summarization.
	SummaryModel string `yaml:"summary_model"`

	// SummaryMaxTokens caps summary length.
	SummaryMaxTokens int `yaml:"summary_max_tokens"`

	// Instructions, when set, is stored as the fixed system message at
	// the start of each new session.
	Instructions string `yaml:"instructions"`
}

// SessionsConfig configures transcript storage.
type SessionsConfig struct {
	// Directory holds one transcript file per session.
	Directory string `yaml:"directory"`
}

// Default returns the configuration that file values are merged over.
func Default() *Config {
	return &Config{
		Context: ContextConfig{
			Strategy:     StrategySummarize,
			TriggerRatio: llmcontext.DefaultTriggerRatio,
		},
		Sessions: SessionsConfig{
			Directory: defaultSessionsDirectory(os.Getenv),
		},
	}
}

// defaultSessionsDirectory is $XDG_STATE_HOME/converse/sessions, or
// ~/.local/state/converse/sessions.
func defaultSessionsDirectory(getenv func(string) string) string {
	if state := getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "converse", "sessions")
	}
	return filepath.Join(getenv("HOME"), ".local", "state", "converse", "sessions")
}

// ResolvePath returns the config file to load: flagValue when set,
// then $CONVERSE_CONFIG, then the XDG default location.
func ResolvePath(flagValue string, getenv func(string) string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := getenv(EnvironmentVariable); path != "" {
		return path
	}
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, "converse", "config.yaml")
}

// LoadFile reads and parses path, expanding variables from the process
// environment. The result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := Parse(data, filepath.Ext(path), os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes a configuration document. extension selects JSONC
// (".json", ".jsonc") or YAML (anything else). Variables expand
// through getenv.
func Parse(data []byte, extension string, getenv func(string) string) (*Config, error) {
	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so once comments and trailing
		// commas are gone the YAML decoder reads it.
		data = jsonc.ToJSON(data)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	config.expandVariables(getenv)
	return config, nil
}

func (config *Config) expandVariables(getenv func(string) string) {
	for i := range config.Providers {
		provider := &config.Providers[i]
		if match := varPattern.FindStringSubmatch(provider.APIKey); match != nil {
			provider.APIKeyVariable = match[1]
		}
		provider.APIKey = expandVars(provider.APIKey, getenv)
		provider.BaseURL = expandVars(provider.BaseURL, getenv)
		provider.Model = expandVars(provider.Model, getenv)
	}
	config.Context.SummaryModel = expandVars(config.Context.SummaryModel, getenv)
	config.Sessions.Directory = expandVars(config.Sessions.Directory, getenv)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, getenv func(string) string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every structural problem at once.
func (config *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(config.Providers))
	for i, provider := range config.Providers {
		switch {
		case provider.Name == "":
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
		case seen[provider.Name]:
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, provider.Name))
		}
		seen[provider.Name] = true
		if provider.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: max_tokens must not be negative", i))
		}
		if provider.Timeout < 0 || provider.ConnectTimeout < 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: timeouts must not be negative", i))
		}
	}

	switch config.Context.Strategy {
	case StrategySummarize, StrategyTruncate, StrategyNone:
	default:
		errs = append(errs, fmt.Errorf("context.strategy must be one of %s, %s, %s; got %q",
			StrategySummarize, StrategyTruncate, StrategyNone, config.Context.Strategy))
	}
	if ratio := config.Context.TriggerRatio; ratio <= 0 || ratio > 1 {
		errs = append(errs, fmt.Errorf("context.trigger_ratio must be in (0, 1], got %v", ratio))
	}
	if config.Context.BudgetTokens < 0 || config.Context.SystemTokens < 0 || config.Context.SummaryMaxTokens < 0 {
		errs = append(errs, errors.New("context token limits must not be negative"))
	}
	if config.Sessions.Directory == "" {
		errs = append(errs, errors.New("sessions.directory is required"))
	}

	return errors.Join(errs...)
}

// ProviderConfigs converts the provider section for the registry.
func (config *Config) ProviderConfigs() []llm.ProviderConfig {
	configs := make([]llm.ProviderConfig, len(config.Providers))
	for i, provider := range config.Providers {
		configs[i] = llm.ProviderConfig{
			Name:           provider.Name,
			Protocol:       llm.Protocol(provider.Protocol),
			APIKey:         provider.APIKey,
			BaseURL:        provider.BaseURL,
			Model:          provider.Model,
			MaxTokens:      provider.MaxTokens,
			Timeout:        provider.Timeout,
			ConnectTimeout: provider.ConnectTimeout,
		}
	}
	return configs
}

// Provider returns the named provider's configuration.
func (config *Config) Provider(name string) (ProviderConfig, bool) {
	for _, provider := range config.Providers {
		if provider.Name == name {
			return provider, true
		}
	}
	return ProviderConfig{}, false
}

// Budget returns the history budget for a conversation with model
// whose responses may use up to maxOutputTokens.
func (config *Config) Budget(model string, maxOutputTokens int) llmcontext.Budget {
	budget := llmcontext.BudgetForModel(model, maxOutputTokens)
	if config.Context.BudgetTokens > 0 {
		budget.Tokens = config.Context.BudgetTokens
	}
	if config.Context.TriggerRatio > 0 {
		budget.TriggerRatio = config.Context.TriggerRatio
	}
	if config.Context.SystemTokens > 0 {
		budget.SystemTokens = config.Context.SystemTokens
	}
	return budget
}
