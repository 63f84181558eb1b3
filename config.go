package chatstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config configures one provider adapter.
type Config struct {
	// Provider selects the adapter: mistral, openai, openrouter, lmstudio,
	// openai-compatible, gemini, ollama, gonka or mock.
	Provider string `yaml:"provider" toml:"provider" json:"provider"`

	// Name overrides the provider name reported in errors and meter events.
	Name string `yaml:"name" toml:"name" json:"name"`

	APIKey  string `yaml:"api_key" toml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url" json:"base_url"`
	Model   string `yaml:"model" toml:"model" json:"model"`

	// EmptySystemPrompt is "omit" or "send". Empty keeps the adapter default.
	EmptySystemPrompt string `yaml:"empty_system_prompt" toml:"empty_system_prompt" json:"empty_system_prompt"`

	Temperature *float64 `yaml:"temperature" toml:"temperature" json:"temperature"`

	// MaxTokens caps the reply length. When set it wins over the model
	// table; zero keeps the model's own limit. Ollama sends it as
	// num_predict.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`

	// MaxConsecutiveMalformed aborts a stream after that many consecutive
	// unparseable lines. Zero never aborts.
	MaxConsecutiveMalformed int  `yaml:"max_consecutive_malformed" toml:"max_consecutive_malformed" json:"max_consecutive_malformed"`
	RepairJSON              bool `yaml:"repair_json" toml:"repair_json" json:"repair_json"`

	Gonka GonkaConfig `yaml:"gonka" toml:"gonka" json:"gonka"`
}

// GonkaConfig holds settings specific to the gonka provider.
type GonkaConfig struct {
	// Address is the bech32 address of the inference node.
	Address string `yaml:"address" toml:"address" json:"address"`
}

// File is a configuration file holding several named providers.
type File struct {
	Default   string   `yaml:"default" toml:"default" json:"default"`
	Providers []Config `yaml:"providers" toml:"providers" json:"providers"`
}

// LoadConfig reads a config file. The format follows the extension:
// .yaml/.yml, .toml, or .json/.jsonc (comments and trailing commas allowed).
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("chatstream: read config: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, &f)
	case ".toml":
		err = toml.Unmarshal(expanded, &f)
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(expanded)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	default:
		return File{}, fmt.Errorf("%w: unsupported config format %q", ErrConfiguration, ext)
	}
	if err != nil {
		return File{}, fmt.Errorf("%w: parse config %s: %w", ErrConfiguration, path, err)
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}

	return f, nil
}

// Validate checks the file for required fields and consistency.
func (f File) Validate() error {
	if len(f.Providers) == 0 {
		return fmt.Errorf("%w: config: at least one provider is required", ErrConfiguration)
	}

	names := make(map[string]bool, len(f.Providers))
	for i, c := range f.Providers {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config: providers[%d]: %w", i, err)
		}
		name := c.DisplayName()
		if names[name] {
			return fmt.Errorf("%w: config: duplicate provider name %q", ErrConfiguration, name)
		}
		names[name] = true
	}

	if f.Default != "" && !names[f.Default] {
		return fmt.Errorf("%w: config: default provider %q is not defined", ErrConfiguration, f.Default)
	}
	return nil
}

// Lookup returns the provider config with the given name, or the default
// when name is empty.
func (f File) Lookup(name string) (Config, bool) {
	if name == "" {
		name = f.Default
	}
	for _, c := range f.Providers {
		if name == "" || c.DisplayName() == name {
			return c, true
		}
	}
	return Config{}, false
}

// DisplayName returns Name, or Provider when Name is empty.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Provider
}

// Validate checks a single provider config. Whether an API key is required
// is decided by the adapter.
func (c Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrConfiguration)
	}
	if c.EmptySystemPrompt != "" {
		if _, err := ParseEmptySystemPrompt(c.EmptySystemPrompt); err != nil {
			return err
		}
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %v", ErrConfiguration, *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", ErrConfiguration)
	}
	if c.MaxConsecutiveMalformed < 0 {
		return fmt.Errorf("%w: max_consecutive_malformed must not be negative", ErrConfiguration)
	}
	return nil
}

// DecoderOptions returns the decoder options implied by the config.
func (c Config) DecoderOptions() []DecoderOption {
	var opts []DecoderOption
	if c.MaxConsecutiveMalformed > 0 {
		opts = append(opts, WithMaxConsecutiveMalformed(c.MaxConsecutiveMalformed))
	}
	if c.RepairJSON {
		opts = append(opts, WithJSONRepair(true))
	}
	return opts
}
