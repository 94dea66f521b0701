package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings are the user preferences that survive restarts.
type Settings struct {
	// NodeVersion is the preferred runtime version. Empty or "default" means
	// unset.
	NodeVersion string `yaml:"node_version,omitempty"`
	// Runner is the preferred runner name (node, python, ...).
	Runner string `yaml:"runner,omitempty"`
}

// LoadSettings reads the settings file. A missing file yields zero Settings.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.NodeVersion = strings.TrimSpace(s.NodeVersion)
	s.Runner = strings.TrimSpace(s.Runner)
	return s, nil
}

// SaveSettings writes the settings file atomically.
func SaveSettings(path string, s Settings) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("missing settings path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// UpdateSettings loads, mutates, and persists the settings file.
func UpdateSettings(path string, update func(*Settings)) error {
	s, err := LoadSettings(path)
	if err != nil {
		return err
	}
	update(&s)
	return SaveSettings(path, s)
}
