package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	HandoffBackend    string        `mapstructure:"HANDOFF_BACKEND"`
	SQLitePath        string        `mapstructure:"SQLITE_PATH"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	ConferenceBaseURL string        `mapstructure:"CONFERENCE_BASE_URL"`
	RoomSuffixLen     int           `mapstructure:"ROOM_SUFFIX_LEN"`
	ReminderLead      time.Duration `mapstructure:"REMINDER_LEAD"`
	ChatbotURL        string        `mapstructure:"CHATBOT_URL"`
	EmotionURL        string        `mapstructure:"EMOTION_URL"`
	WhatsAppAPIURL    string        `mapstructure:"WHATSAPP_API_URL"`
	WhatsAppPhoneID   string        `mapstructure:"WHATSAPP_PHONE_ID"`
	WhatsAppToken     string        `mapstructure:"WHATSAPP_TOKEN"`
	OpenAIAPIKey      string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel       string        `mapstructure:"OPENAI_MODEL"`
}

// Supported values for HANDOFF_BACKEND.
const (
	HandoffPostgres = "postgres"
	HandoffRedis    = "redis"
	HandoffSQLite   = "sqlite"
	HandoffMemory   = "memory"
)

var configKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "HANDOFF_BACKEND", "SQLITE_PATH",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"CONFERENCE_BASE_URL", "ROOM_SUFFIX_LEN", "REMINDER_LEAD",
	"CHATBOT_URL", "EMOTION_URL",
	"WHATSAPP_API_URL", "WHATSAPP_PHONE_ID", "WHATSAPP_TOKEN",
	"OPENAI_API_KEY", "OPENAI_MODEL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("HANDOFF_BACKEND", HandoffPostgres)
	v.SetDefault("SQLITE_PATH", "teleconsulta.db")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("CONFERENCE_BASE_URL", "https://meet.jit.si")
	v.SetDefault("ROOM_SUFFIX_LEN", 0)
	v.SetDefault("REMINDER_LEAD", "15m")
	v.SetDefault("CHATBOT_URL", "http://localhost:5005")
	v.SetDefault("EMOTION_URL", "http://localhost:8001")
	v.SetDefault("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range configKeys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.ConferenceBaseURL = strings.TrimRight(cfg.ConferenceBaseURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, DevAuthMiddleware is active and unauthenticated requests get admin access.")
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

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.HandoffBackend {
	case HandoffPostgres, HandoffMemory:
	case HandoffRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when HANDOFF_BACKEND is %q", HandoffRedis)
		}
	case HandoffSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when HANDOFF_BACKEND is %q", HandoffSQLite)
		}
	default:
		return fmt.Errorf("HANDOFF_BACKEND must be one of postgres, redis, sqlite, memory, got %q", c.HandoffBackend)
	}

	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set outside development (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY alone is not accepted in production; configure AUTH_ISSUER")
	}

	if c.RoomSuffixLen < 0 || c.RoomSuffixLen > 32 {
		return fmt.Errorf("ROOM_SUFFIX_LEN must be between 0 and 32, got %d", c.RoomSuffixLen)
	}
	if c.ReminderLead <= 0 {
		return fmt.Errorf("REMINDER_LEAD must be positive, got %s", c.ReminderLead)
	}
	if c.WhatsAppToken != "" && c.WhatsAppPhoneID == "" {
		return fmt.Errorf("WHATSAPP_PHONE_ID is required when WHATSAPP_TOKEN is set")
	}

	return nil
}

// WhatsAppEnabled reports whether outbound WhatsApp delivery is configured.
func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneID != ""
}
