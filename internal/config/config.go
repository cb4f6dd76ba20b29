package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vs-ai-ds/hms-backend/internal/email"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Authz     AuthzConfig
	Workflow  WorkflowConfig
	Sharing   SharingConfig
	Tenant    TenantConfig
	Email     EmailConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	RefreshSecret      string `mapstructure:"refresh_secret"`
	ExpiryHours        int    `mapstructure:"expiry_hours"`
	RefreshExpiryHours int    `mapstructure:"refresh_expiry_hours"`
}

func (c *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

func (c *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpiryHours) * time.Hour
}

// AuthzConfig tunes the permission evaluator. OnboardingStatuses lists
// the tenant statuses that are restricted to onboarding-class actions.
type AuthzConfig struct {
	CacheTTLSeconds    int      `mapstructure:"cache_ttl_seconds"`
	OnboardingStatuses []string `mapstructure:"onboarding_statuses"`
}

func (c *AuthzConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type WorkflowConfig struct {
	CheckinGraceMinutes int `mapstructure:"checkin_grace_minutes"`
}

func (c *WorkflowConfig) CheckinGrace() time.Duration {
	return time.Duration(c.CheckinGraceMinutes) * time.Minute
}

type SharingConfig struct {
	DefaultTTLHours int `mapstructure:"default_ttl_hours"`
}

func (c *SharingConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLHours) * time.Hour
}

// TenantConfig controls onboarding. AutoActivate skips the manual
// platform approval step after email verification; meant for
// development environments only.
type TenantConfig struct {
	AutoActivate bool `mapstructure:"auto_activate"`
}

// EmailConfig covers SMTP delivery plus the frontend base URL that
// verification and reset links point at.
type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	From        string `mapstructure:"from"`
	LinkBaseURL string `mapstructure:"link_base_url"`
}

func (c *EmailConfig) ToSenderConfig() email.Config {
	return email.Config{
		Enabled:  c.Enabled,
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func LoadConfig() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "hms")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("jwt.expiry_hours", 1)
	viper.SetDefault("jwt.refresh_expiry_hours", 168)

	viper.SetDefault("authz.cache_ttl_seconds", 60)
	viper.SetDefault("authz.onboarding_statuses", []string{"PENDING", "VERIFIED"})

	viper.SetDefault("workflow.checkin_grace_minutes", 30)

	viper.SetDefault("sharing.default_ttl_hours", 72)

	viper.SetDefault("tenant.auto_activate", false)

	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.host", "localhost")
	viper.SetDefault("email.port", 1025)
	viper.SetDefault("email.from", "no-reply@hms.com")
	viper.SetDefault("email.link_base_url", "http://localhost:5173")

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 50)
	viper.SetDefault("rate_limit.burst", 100)

	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
}
