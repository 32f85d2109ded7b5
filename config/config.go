// Package config loads persistent user settings from
// $XDG_CONFIG_HOME/jitdbg/config.yml (falling back to
// $HOME/.config/jitdbg/config.yml).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = "jitdbg"
	configFileName = "config.yml"
)

type Config struct {
	// Repl prompt.
	Prompt string `yaml:"prompt,omitempty"`

	// Watch patterns installed into the jit registry on startup.
	JitWatchPatterns []string `yaml:"jit-watch-patterns,omitempty"`

	// Component logging, equivalent to the --log / --log-components flags.
	Log           bool   `yaml:"log,omitempty"`
	LogComponents string `yaml:"log-components,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		Prompt: "(jitdbg) ",
	}
}

func configFilePath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate config file: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}

	return filepath.Join(dir, configDirName, configFileName), nil
}

// LoadConfig reads the user's config file.  A missing file is not an error.
// A malformed file is reported, with defaults returned alongside the error
// so the caller can keep going.
func LoadConfig() (*Config, error) {
	result := defaultConfig()

	path, err := configFilePath()
	if err != nil {
		return result, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = yaml.Unmarshal(content, result)
	if err != nil {
		return defaultConfig(), fmt.Errorf(
			"failed to parse config file %s: %w",
			path,
			err)
	}

	if result.Prompt == "" {
		result.Prompt = defaultConfig().Prompt
	}

	return result, nil
}

// SaveConfig writes the config back, creating the config directory when
// needed.
func SaveConfig(cfg *Config) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	err = os.WriteFile(path, content, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}
