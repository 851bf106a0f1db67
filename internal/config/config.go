package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	AMQPURL             string        `mapstructure:"AMQP_URL"`
	AMQPExchange        string        `mapstructure:"AMQP_EXCHANGE"`
	AuthJWTSecret       string        `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	ClinicTimezone      string        `mapstructure:"CLINIC_TIMEZONE"`
	SMTPHost            string        `mapstructure:"SMTP_HOST"`
	SMTPPort            int           `mapstructure:"SMTP_PORT"`
	SMTPUsername        string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword        string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom            string        `mapstructure:"SMTP_FROM"`
	TwilioAccountSID    string        `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken     string        `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFrom          string        `mapstructure:"TWILIO_FROM"`
	ReminderEnabled     bool          `mapstructure:"REMINDER_ENABLED"`
	ReminderInterval    time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ReminderConcurrency int           `mapstructure:"REMINDER_CONCURRENCY"`
	CatalogCacheSize    int           `mapstructure:"CATALOG_CACHE_SIZE"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AMQP_URL", "AMQP_EXCHANGE",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "CORS_ORIGINS", "CLINIC_TIMEZONE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM",
	"REMINDER_ENABLED", "REMINDER_INTERVAL", "REMINDER_CONCURRENCY",
	"CATALOG_CACHE_SIZE", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "4000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AMQP_EXCHANGE", "clinic.appointments")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("CLINIC_TIMEZONE", "America/Bogota")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("REMINDER_ENABLED", true)
	v.SetDefault("REMINDER_INTERVAL", "1m")
	v.SetDefault("REMINDER_CONCURRENCY", 8)
	v.SetDefault("CATALOG_CACHE_SIZE", 256)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests are authenticated from the X-User-ID header.")
		log.Println("WARNING: Set ENV=production and AUTH_JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPEnabled reports whether outbound email is configured. Without it
// reminders and confirmations are logged instead of sent.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// SMSEnabled reports whether Twilio credentials are present.
func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// Location resolves CLINIC_TIMEZONE. Slot dates and reminder texts are always
// computed in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("load CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_JWT_SECRET must be set so bearer tokens are verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf(
			"AUTH_JWT_SECRET must be set when ENV is %q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive, got %s", c.ReminderInterval)
	}
	if c.ReminderConcurrency <= 0 {
		return fmt.Errorf("REMINDER_CONCURRENCY must be positive, got %d", c.ReminderConcurrency)
	}
	if c.SMTPEnabled() && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}
