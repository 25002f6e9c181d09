// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	// KeywordsFile optionally overrides the embedded spam keyword list.
	// When set, the file is also watched and hot-reloaded on change.
	KeywordsFile string `yaml:"keywords_file"`

	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
}

// AdminConfig holds the credentials accepted by the admin access endpoint.
// PasswordHash is a bcrypt hash; generate one with the hash-password
// subcommand.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type RateLimitConfig struct {
	ReportsPerHour int `yaml:"reports_per_hour"`
	ReportsPerDay  int `yaml:"reports_per_day"`
}

type SendGridConfig struct {
	APIKey      string `yaml:"api_key"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	ToAddress   string `yaml:"to_address"`
	SandboxMode bool   `yaml:"sandbox_mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     "reports.db",
		RateLimit: RateLimitConfig{
			ReportsPerHour: 2,
			ReportsPerDay:  5,
		},
		SendGrid: SendGridConfig{
			FromName: "Report Service",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// path is non-empty, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "REPORTSVC_LISTEN_ADDR")
	setString(&cfg.DBPath, "REPORTSVC_DB_PATH")
	setString(&cfg.KeywordsFile, "REPORTSVC_KEYWORDS_FILE")
	setString(&cfg.Admin.Username, "REPORTSVC_ADMIN_USERNAME")
	setString(&cfg.Admin.PasswordHash, "REPORTSVC_ADMIN_PASSWORD_HASH")
	setInt(&cfg.RateLimit.ReportsPerHour, "REPORTSVC_REPORTS_PER_HOUR")
	setInt(&cfg.RateLimit.ReportsPerDay, "REPORTSVC_REPORTS_PER_DAY")
	setString(&cfg.SendGrid.APIKey, "SENDGRID_API_KEY")
	setString(&cfg.SendGrid.FromAddress, "REPORTSVC_MAIL_FROM")
	setString(&cfg.SendGrid.FromName, "REPORTSVC_MAIL_FROM_NAME")
	setString(&cfg.SendGrid.ToAddress, "REPORTSVC_MAIL_TO")
	setBool(&cfg.SendGrid.SandboxMode, "REPORTSVC_MAIL_SANDBOX")
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.RateLimit.ReportsPerHour < 1 || c.RateLimit.ReportsPerDay < 1 {
		return fmt.Errorf("rate limits must be at least 1")
	}
	if c.RateLimit.ReportsPerHour > c.RateLimit.ReportsPerDay {
		return fmt.Errorf("reports_per_hour (%d) exceeds reports_per_day (%d)",
			c.RateLimit.ReportsPerHour, c.RateLimit.ReportsPerDay)
	}
	if (c.Admin.Username == "") != (c.Admin.PasswordHash == "") {
		return fmt.Errorf("admin username and password_hash must be set together")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
