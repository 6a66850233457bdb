package envcipher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type SourceType string

const (
	// SourceEnv reads the key from an environment variable.
	SourceEnv SourceType = "env"
	// SourceFile reads the key from a plaintext file.
	SourceFile SourceType = "file"
	// SourceDotenv reads a named variable out of a dotenv file.
	SourceDotenv SourceType = "dotenv"
	// SourceKeyring reads the key from the OS keyring.
	SourceKeyring SourceType = "keyring"
	// SourceAge reads the key from an age-encrypted key file.
	SourceAge SourceType = "age"
	// SourceCommand obtains the key by running a configured command.
	SourceCommand SourceType = "cmd"
)

const (
	// DefaultKeyEnv is the environment variable consulted when no key
	// sources are configured.
	DefaultKeyEnv = "ENVCIPHER_KEY"

	// DefaultKeyringService namespaces keyring entries when the source
	// does not name one.
	DefaultKeyringService = "envcipher"
)

// IdentitySource locates an age identity used to unwrap an age key file.
type IdentitySource struct {
	// Type of identity source. Must be one of: "env", "file"
	Type string `yaml:"type"`
	// Environment variable name (for "env" type)
	Name string `yaml:"name,omitempty"`
	// Path to the identity file (for "file" type)
	Path string `yaml:"path,omitempty"`
}

// CommandConfig describes how to run a command that prints the shared key.
type CommandConfig struct {
	// Template is the command to run, rendered before execution
	Template string `yaml:"template"`
	// OutputTemplate optionally extracts the key from the command output
	OutputTemplate string `yaml:"output_template,omitempty"`
	// Environment variables for the command
	Environment map[string]string `yaml:"environment,omitempty"`
	// Timeout for command execution, e.g. "5s"
	Timeout string `yaml:"timeout,omitempty"`
	// WorkingDir for command execution
	WorkingDir string `yaml:"working_dir,omitempty"`
}

func (c *CommandConfig) Validate() error {
	if c.Template == "" {
		return fmt.Errorf("command template is required for cmd key source")
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid command timeout: %w", err)
		}
	}
	return nil
}

// KeySource describes one place the shared secret key may be found.
// Sources are consulted in configuration order.
type KeySource struct {
	Type SourceType `yaml:"type"`

	// Name of the environment variable, dotenv variable, or keyring entry
	Name string `yaml:"name,omitempty"`
	// Path to the key file, dotenv file, or age key file
	Path string `yaml:"path,omitempty"`
	// Service namespaces keyring entries
	Service string `yaml:"service,omitempty"`
	// Identities unwrap age key files (in order of preference)
	Identities []IdentitySource `yaml:"identities,omitempty"`
	// Command configuration for cmd sources
	Command *CommandConfig `yaml:"command,omitempty"`
}

func (s *KeySource) Validate() error {
	switch s.Type {
	case SourceEnv:
		return nil
	case SourceFile:
		if s.Path == "" {
			return NewSourceError(s.Type, fmt.Errorf("path is required"))
		}
		return nil
	case SourceDotenv:
		if s.Path == "" {
			return NewSourceError(s.Type, fmt.Errorf("path is required"))
		}
		if s.Name == "" {
			return NewSourceError(s.Type, fmt.Errorf("variable name is required"))
		}
		return nil
	case SourceKeyring:
		if s.Name == "" {
			return NewSourceError(s.Type, fmt.Errorf("entry name is required"))
		}
		return nil
	case SourceAge:
		if s.Path == "" {
			return NewSourceError(s.Type, fmt.Errorf("path is required"))
		}
		return nil
	case SourceCommand:
		if s.Command == nil {
			return NewSourceError(s.Type, fmt.Errorf("command configuration is required"))
		}
		if err := s.Command.Validate(); err != nil {
			return NewSourceError(s.Type, err)
		}
		return nil
	default:
		return NewSourceError(s.Type, fmt.Errorf("unsupported key source type"))
	}
}

// Config is the on-disk configuration for resolving the shared secret key.
type Config struct {
	KeySources []KeySource `yaml:"key_sources"`
}

func (c *Config) Validate() error {
	for i := range c.KeySources {
		if err := c.KeySources[i].Validate(); err != nil {
			return fmt.Errorf("%w: key source %d: %w", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a file in YAML format
func SaveConfig(config Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfig loads the configuration from a file in YAML format
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
