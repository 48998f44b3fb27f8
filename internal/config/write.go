package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Marshal renders cfg as a YAML config file using the same keys Load reads
func Marshal(cfg *Config) ([]byte, error) {
	v := viper.New()
	setDefaults(v, cfg)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return data, nil
}

// WriteFile writes cfg to path. An existing file is kept as a timestamped
// backup when overwrite is set, otherwise it is an error.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return fmt.Errorf("config file %s already exists", path)
		}
		backup := path + ".backup." + time.Now().Format("20060102-150405")
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("failed to back up config file: %w", err)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// 0600: the file carries the jwt secret
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// GenerateSecret returns a random hex secret suitable for auth.jwt_secret
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
