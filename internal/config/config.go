// Package config loads and validates service configuration from the
// environment and an optional YAML file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SeedUser is a statically configured principal for the local credential store.
type SeedUser struct {
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	Role         string `mapstructure:"role"`
	PasswordHash string `mapstructure:"password_hash"`
}

// SSO holds the identity-provider settings for the federated login flow.
type SSO struct {
	// BaseURL is the provider root, e.g. https://sso.example.com.
	BaseURL string `mapstructure:"base_url"`
	// Realm selects the provider realm; auth, token and userinfo endpoints
	// are derived from BaseURL and Realm.
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	// AdminGroup/ManagerGroup/AuditorGroup are provider group or role names
	// mapped to internal roles, checked in that order.
	AdminGroup   string `mapstructure:"admin_group"`
	ManagerGroup string `mapstructure:"manager_group"`
	AuditorGroup string `mapstructure:"auditor_group"`
}

// Config is the full startup configuration. It is validated once; the running
// service treats it as immutable.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// PGDSN enables the PostgreSQL credential store and audit sink when set.
	PGDSN string `mapstructure:"pg_dsn"`
	// SigningKey signs session tokens. No default: startup fails without it.
	SigningKey string `mapstructure:"signing_key"`

	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	LockoutAttempts int           `mapstructure:"lockout_attempts"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`

	// FlowTTL bounds how long a pending federated login may wait for its
	// callback before it is discarded.
	FlowTTL time.Duration `mapstructure:"flow_ttl"`
	// IdPTimeout caps each network call to the identity provider.
	IdPTimeout time.Duration `mapstructure:"idp_timeout"`

	AuditLogPath string `mapstructure:"audit_log_path"`
	// DirectoryPath points at the collector's dataset export. A missing file
	// starts the service with an empty directory.
	DirectoryPath string `mapstructure:"directory_path"`

	SSO   SSO        `mapstructure:"sso"`
	Users []SeedUser `mapstructure:"users"`
}

const envPrefix = "DIRSENTRY"

// Load reads the optional config file (path from DIRSENTRY_CONFIG, default
// dirsentry.yaml in the working directory), overlays environment variables,
// and validates the result. A missing config file is not an error; a missing
// signing key is.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("pg_dsn", "")
	// Registered empty so AutomaticEnv can populate it; validation still
	// refuses an empty key.
	v.SetDefault("signing_key", "")
	v.SetDefault("session_ttl", "60m")
	v.SetDefault("lockout_attempts", 3)
	v.SetDefault("lockout_duration", "15m")
	v.SetDefault("flow_ttl", "10m")
	v.SetDefault("idp_timeout", "5s")
	v.SetDefault("audit_log_path", "logs/audit.log")
	v.SetDefault("directory_path", "data/directory.json")
	v.SetDefault("sso.base_url", "")
	v.SetDefault("sso.realm", "")
	v.SetDefault("sso.client_id", "")
	v.SetDefault("sso.client_secret", "")
	v.SetDefault("sso.redirect_uri", "")
	v.SetDefault("sso.admin_group", "directory-analytics-admin")
	v.SetDefault("sso.manager_group", "directory-analytics-manager")
	v.SetDefault("sso.auditor_group", "directory-analytics-auditor")

	path := v.GetString("config")
	if path == "" {
		path = "dirsentry.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isFileMissing(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the startup invariants the rest of the service relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http_addr must be set")
	}
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New("config: signing_key must be set; there is no default")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session_ttl must be positive")
	}
	if c.LockoutAttempts <= 0 {
		return errors.New("config: lockout_attempts must be positive")
	}
	if c.LockoutDuration <= 0 {
		return errors.New("config: lockout_duration must be positive")
	}
	if c.FlowTTL < time.Minute || c.FlowTTL > 30*time.Minute {
		return errors.New("config: flow_ttl must be between 1m and 30m")
	}
	if c.IdPTimeout <= 0 || c.IdPTimeout > time.Minute {
		return errors.New("config: idp_timeout must be positive and at most 1m")
	}
	for i, u := range c.Users {
		if strings.TrimSpace(u.Email) == "" || strings.TrimSpace(u.PasswordHash) == "" {
			return fmt.Errorf("config: users[%d]: email and password_hash are required", i)
		}
	}
	if c.SSOEnabled() {
		if c.SSO.ClientID == "" || c.SSO.RedirectURI == "" {
			return errors.New("config: sso requires client_id and redirect_uri")
		}
	}
	return nil
}

// SSOEnabled reports whether the federated flow is configured.
func (c *Config) SSOEnabled() bool {
	return strings.TrimSpace(c.SSO.BaseURL) != ""
}

func isFileMissing(err error) bool {
	// viper returns *fs.PathError for an explicit SetConfigFile path.
	return err != nil && strings.Contains(err.Error(), "no such file")
}
