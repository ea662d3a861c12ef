// Package config loads application configuration from the environment and
// an optional JSON config file.
package config

import (
	"fmt"
	"os"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// Config holds the application configuration. Environment variables share
// the koanf tag names; a config.json file, when present, takes precedence.
type Config struct {
	// TelegramToken is the bot token used for all chat traffic.
	TelegramToken string `koanf:"TELEGRAM_TOKEN"`

	// TelegramChatID is the single fixed recipient of prompts and
	// confirmations.
	TelegramChatID int64 `koanf:"TELEGRAM_CHAT_ID"`

	// DataDir holds the rate table, ledger and OAuth token files.
	DataDir string `koanf:"DATA_DIR"`

	// StoreBackend selects the persistence backend: "json" (default) or
	// "postgres".
	StoreBackend string `koanf:"STORE_BACKEND"`

	// MailPollInterval is the mail poll cadence in seconds.
	MailPollInterval int `koanf:"MAIL_POLL_INTERVAL"`

	// SecretsFilePath overrides the default OAuth client secret location.
	SecretsFilePath string `koanf:"CLIENT_SECRET_FILE"`

	PostgresHost     string `koanf:"POSTGRES_HOST"`
	PostgresPort     int    `koanf:"POSTGRES_PORT"`
	PostgresDatabase string `koanf:"POSTGRES_DATABASE"`
	PostgresUser     string `koanf:"POSTGRES_USER"`
	PostgresPassword string `koanf:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Load reads configuration from environment variables and, if configPath
// exists, overlays it with the JSON file's contents.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), kjson.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.StoreBackend == "" {
		c.StoreBackend = "json"
	}
	if c.MailPollInterval <= 0 {
		c.MailPollInterval = 45
	}
	if c.SecretsFilePath == "" {
		c.SecretsFilePath = ClientSecretFile
	}
}

// Validate checks the fields required to run the daemon.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	if c.StoreBackend != "json" && c.StoreBackend != "postgres" {
		return fmt.Errorf("STORE_BACKEND must be json or postgres, got %q", c.StoreBackend)
	}
	return nil
}
