package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	AI       AIConfig       `mapstructure:"ai"`
	Email    EmailConfig    `mapstructure:"email"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
	AdminEmails       []string      `mapstructure:"admin_emails"`
}

// StripeConfig holds Stripe payment configuration.
type StripeConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	PublishableKey string `mapstructure:"publishable_key"`
	SuccessURL     string `mapstructure:"success_url"`
	CancelURL      string `mapstructure:"cancel_url"`
}

// CreditsConfig holds the fixed per-operation credit prices. Prices are
// decimal strings so no float conversion ever touches a ledger amount.
type CreditsConfig struct {
	OperationPrices map[string]string `mapstructure:"operation_prices"`
}

// AIConfig holds the content-generation provider configuration.
type AIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
}

// EmailConfig holds email delivery configuration.
type EmailConfig struct {
	SMTP        SMTPConfig `mapstructure:"smtp"`
	FromAddress string     `mapstructure:"from_address"`
	FromName    string     `mapstructure:"from_name"`
}

// SMTPConfig holds SMTP configuration.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// CampaignConfig holds bulk email campaign configuration.
type CampaignConfig struct {
	// MaxConcurrentSends caps the per-campaign send fan-out.
	MaxConcurrentSends  int           `mapstructure:"max_concurrent_sends"`
	SendTimeout         time.Duration `mapstructure:"send_timeout"`
	OnboardingAfter     time.Duration `mapstructure:"onboarding_after"`
	ReactivationAfter   time.Duration `mapstructure:"reactivation_after"`
	ReactivationCredits string        `mapstructure:"reactivation_credits"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/postnow")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("POSTNOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("POSTNOW_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("POSTNOW_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("POSTNOW_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if secretKey := os.Getenv("POSTNOW_STRIPE_SECRET_KEY"); secretKey != "" {
		cfg.Stripe.SecretKey = secretKey
	}
	if webhookSecret := os.Getenv("POSTNOW_STRIPE_WEBHOOK_SECRET"); webhookSecret != "" {
		cfg.Stripe.WebhookSecret = webhookSecret
	}
	if apiKey := os.Getenv("POSTNOW_AI_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if password := os.Getenv("POSTNOW_SMTP_PASSWORD"); password != "" {
		cfg.Email.SMTP.Password = password
	}
	if s := os.Getenv("POSTNOW_ADMIN_EMAILS"); s != "" {
		cfg.Auth.AdminEmails = splitCommaList(s)
	}

	return &cfg, nil
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "postnow")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.access_token_expiry", 24*time.Hour)
	v.SetDefault("auth.admin_emails", []string{})

	// Credit pricing defaults. Flat per-operation prices, no per-token
	// estimation.
	v.SetDefault("credits.operation_prices", map[string]string{
		"idea_generation":    "1.00",
		"caption_generation": "0.50",
		"image_generation":   "0.23",
	})

	// AI provider defaults
	v.SetDefault("ai.base_url", "https://api.openai.com")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.request_timeout", 30*time.Second)
	v.SetDefault("ai.failure_threshold", 5)
	v.SetDefault("ai.circuit_timeout", 60*time.Second)

	// Email defaults
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.from_name", "PostNow")

	// Campaign defaults
	v.SetDefault("campaign.max_concurrent_sends", 10)
	v.SetDefault("campaign.send_timeout", 20*time.Second)
	v.SetDefault("campaign.onboarding_after", 48*time.Hour)
	v.SetDefault("campaign.reactivation_after", 30*24*time.Hour)
	v.SetDefault("campaign.reactivation_credits", "5.00")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
