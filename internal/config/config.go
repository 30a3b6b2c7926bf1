// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config provides configuration loading, merging, and persistence
// helpers. It uses Viper for file/env/flag parsing and exposes utility
// functions to read/write configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appDir   = "keymaster-ca"
	fileBase = "keymaster-ca"
)

// Config is the on-disk and in-memory configuration of the console.
type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`

	Server struct {
		// Listen is the address `serve` binds to.
		Listen string `mapstructure:"listen" yaml:"listen"`
		// URL, when set, makes the TUI and CLI talk to a running API server
		// instead of opening the database directly.
		URL string `mapstructure:"url" yaml:"url"`
		// PublicURL is the base used for public key download links.
		PublicURL string `mapstructure:"public_url" yaml:"public_url"`
	} `mapstructure:"server" yaml:"server"`

	Language string `mapstructure:"language" yaml:"language"`

	Log struct {
		Level string `mapstructure:"level" yaml:"level"`
		File  string `mapstructure:"file" yaml:"file"`
	} `mapstructure:"log" yaml:"log"`

	Authority struct {
		KeyType    string `mapstructure:"key_type" yaml:"key_type"`
		Expire     int    `mapstructure:"expire" yaml:"expire"`
		HostExpire int    `mapstructure:"host_expire" yaml:"host_expire"`
	} `mapstructure:"authority" yaml:"authority"`

	UI struct {
		MessageTTL time.Duration `mapstructure:"message_ttl" yaml:"message_ttl"`
	} `mapstructure:"ui" yaml:"ui"`
}

// Defaults returns the default key/value map fed to LoadConfig.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":         "sqlite",
		"database.dsn":          "./keymaster-ca.db",
		"server.listen":         "127.0.0.1:9800",
		"server.url":            "",
		"server.public_url":     "http://127.0.0.1:9800",
		"language":              "en",
		"log.level":             "info",
		"log.file":              defaultLogFile(),
		"authority.key_type":    "ed25519",
		"authority.expire":      600,
		"authority.host_expire": 600,
		"ui.message_ttl":        3 * time.Second,
	}
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDir+".log")
	}
	return filepath.Join(dir, appDir, appDir+".log")
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "KeymasterCA")
		default: // Linux, macOS, etc.
			configDir = "/etc/" + appDir
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, appDir)
	}

	return filepath.Join(configDir, fileBase+".yaml"), nil
}

// LoadConfig layers defaults, config files, KEYMASTER_CA_* environment
// variables and the command's flags (highest precedence) into T.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T
	v := viper.New()

	// 1. Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Set up file search paths
	v.SetConfigName(fileBase)
	v.SetConfigType("yaml")

	// 3. An explicit --config path has the highest precedence for file-based configuration.
	if additionalConfigFilePath != nil {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	// 4. Add standard config locations
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	// 5. Read in the primary config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	// 6. Read from environment variables
	v.SetEnvPrefix("keymaster_ca")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 7. cli flags
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile persists c as YAML to the user (or system) config path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600: the DSN may carry credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}

	return path, nil
}
