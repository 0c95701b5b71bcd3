package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Activation modes for accounts created through federated registration.
const (
	ActivationManual = "manual"
	ActivationAuto   = "auto"
	ActivationMail   = "mail"
)

// Config holds all application settings
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Providers ProvidersConfig
	Email     EmailConfig
	Session   SessionConfig
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int

	// AdminAPIToken guards the administrative endpoints. Empty disables them.
	AdminAPIToken string `mapstructure:"admin_api_token"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig contains unified Redis connection settings.
// Supported modes: single, sentinel, cluster.
type RedisConfig struct {
	// Mode: Redis deployment mode ("single", "sentinel", "cluster"). Defaults to "single".
	Mode string `mapstructure:"mode"`

	// Addrs: list of host:port addresses, used by all modes. For "single"
	// the first entry wins when both Addrs and Addr are set.
	Addrs []string `mapstructure:"addrs"`

	// Addr: single-address fallback for "single" mode.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: master server name, sentinel mode only.
	MasterName string `mapstructure:"master_name"`
}

// AuthConfig contains the federated authentication policy settings
type AuthConfig struct {
	// MaxLoginErrors is the per-session mismatched-identity attempt limit;
	// reaching it destroys the session (forced logout).
	MaxLoginErrors int `mapstructure:"max_login_errors"`

	// AllowUnverifiedEmailAddresses permits registration from providers that
	// report the email as unverified.
	AllowUnverifiedEmailAddresses bool `mapstructure:"allow_unverified_email_addresses"`

	// ActivationMode: manual | auto | mail
	ActivationMode string `mapstructure:"activation_mode"`

	// AutoLinkByEmail enables the system-initiated link between a verified
	// provider email and an existing host account with the same address.
	AutoLinkByEmail bool `mapstructure:"auto_link_by_email"`
}

// ProvidersConfig holds per-provider API credentials
type ProvidersConfig struct {
	Google   GoogleConfig   `mapstructure:"google"`
	Facebook FacebookConfig `mapstructure:"facebook"`
}

// GoogleConfig contains Google OIDC settings
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// FacebookConfig contains Facebook Graph API settings
type FacebookConfig struct {
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	RedirectURI string `mapstructure:"redirect_uri"`
}

// EmailConfig contains transactional email settings
type EmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// SessionConfig contains session store settings
type SessionConfig struct {
	TTLHours int `mapstructure:"ttl_hours"`
}

// PostgresConnectionString builds the PostgreSQL DSN
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load reads the configuration from a file and explicitly bound env vars
func Load(configPath string) (*Config, error) {
	vip := viper.New() // fresh instance, no global viper state

	vip.SetDefault("auth.max_login_errors", 3)
	vip.SetDefault("auth.activation_mode", ActivationAuto)
	vip.SetDefault("auth.auto_link_by_email", true)
	vip.SetDefault("session.ttl_hours", 24)

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("auth.max_login_errors", "AUTH_MAX_LOGIN_ERRORS")
	vip.BindEnv("auth.allow_unverified_email_addresses", "AUTH_ALLOW_UNVERIFIED_EMAIL_ADDRESSES")
	vip.BindEnv("auth.activation_mode", "AUTH_ACTIVATION_MODE")
	vip.BindEnv("auth.auto_link_by_email", "AUTH_AUTO_LINK_BY_EMAIL")

	vip.BindEnv("providers.google.client_id", "GOOGLE_CLIENT_ID")
	vip.BindEnv("providers.google.client_secret", "GOOGLE_CLIENT_SECRET")
	vip.BindEnv("providers.google.redirect_uri", "GOOGLE_REDIRECT_URI")
	vip.BindEnv("providers.facebook.app_id", "FACEBOOK_APP_ID")
	vip.BindEnv("providers.facebook.app_secret", "FACEBOOK_APP_SECRET")
	vip.BindEnv("providers.facebook.redirect_uri", "FACEBOOK_REDIRECT_URI")

	vip.BindEnv("email.enabled", "EMAIL_ENABLED")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	vip.BindEnv("session.ttl_hours", "SESSION_TTL_HOURS")
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.admin_api_token", "ADMIN_API_TOKEN")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Config file '%s' not found, using env vars/defaults.", configPath)
			} else {
				log.Printf("Warning: could not read config file '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Loaded configuration ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Auth MaxLoginErrors: %d", cfg.Auth.MaxLoginErrors)
		log.Printf("Auth ActivationMode: %s", cfg.Auth.ActivationMode)
		log.Printf("Google ClientID set: %t", cfg.Providers.Google.ClientID != "")
		log.Printf("Facebook AppID set: %t", cfg.Providers.Facebook.AppID != "")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("----------------------------")
	}

	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	switch cfg.Auth.ActivationMode {
	case ActivationManual, ActivationAuto, ActivationMail:
	default:
		return nil, fmt.Errorf("invalid auth.activation_mode %q, allowed: manual, auto, mail", cfg.Auth.ActivationMode)
	}
	if cfg.Auth.MaxLoginErrors <= 0 {
		return nil, fmt.Errorf("auth.max_login_errors must be positive")
	}
	if cfg.Auth.ActivationMode == ActivationMail && cfg.Email.Enabled && cfg.Email.ResendAPIKey == "" {
		return nil, fmt.Errorf("email.resend_api_key is required for mail activation mode (check RESEND_API_KEY env var)")
	}

	return &cfg, nil
}
