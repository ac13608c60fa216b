// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                 string
	DBPath               string
	SessionTimeout       time.Duration
	EngineAddr           string
	EngineRequestTimeout time.Duration
	AdminAPIKey          string
	Checkpoint           CheckpointConfig
	Billing              BillingConfig
	WhatsApp             WhatsAppConfig
}

// CheckpointConfig holds Postgres settings for the checkpoint backend.
type CheckpointConfig struct {
	Host           string
	Port           string
	DBName         string
	User           string
	Password       string
	ConnectOptions string
}

// BillingConfig holds TusFacturas credentials. All three must be set
// for the invoicing capability to be enabled.
type BillingConfig struct {
	APIKey    string
	APIToken  string
	UserToken string
}

// Enabled reports whether the billing capability is configured.
func (b BillingConfig) Enabled() bool {
	return b.APIKey != "" && b.APIToken != "" && b.UserToken != ""
}

// WhatsAppConfig holds channel gateway settings.
type WhatsAppConfig struct {
	AccessToken   string
	VerifyToken   string
	PhoneNumberID string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	timeoutMinutes := getEnvInt("SESSION_TIMEOUT_MINUTES", 30)
	if timeoutMinutes <= 0 {
		timeoutMinutes = 30
	}
	engineTimeoutSeconds := getEnvInt("ENGINE_REQUEST_TIMEOUT_SECONDS", 90)
	if engineTimeoutSeconds <= 0 {
		engineTimeoutSeconds = 90
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBPath:               getEnv("DB_PATH", "./data/facturai.db"),
		SessionTimeout:       time.Duration(timeoutMinutes) * time.Minute,
		EngineAddr:           getEnv("ENGINE_ADDR", ""),
		EngineRequestTimeout: time.Duration(engineTimeoutSeconds) * time.Second,
		AdminAPIKey:          getEnv("ADMIN_API_KEY", ""),
		Checkpoint: CheckpointConfig{
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnv("POSTGRES_PORT", "5432"),
			DBName:         getEnv("POSTGRES_DB", "appdb"),
			User:           getEnv("POSTGRES_USER", "postgres"),
			Password:       getEnv("POSTGRES_PASSWORD", "postgres"),
			ConnectOptions: getEnv("POSTGRES_CONNECT_OPTIONS", ""),
		},
		Billing: BillingConfig{
			APIKey:    getEnv("TUSFACTURAS_API_KEY", ""),
			APIToken:  getEnv("TUSFACTURAS_API_TOKEN", ""),
			UserToken: getEnv("TUSFACTURAS_USER_TOKEN", ""),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			VerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.EngineAddr == "" {
		return fmt.Errorf("ENGINE_ADDR cannot be empty")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
