package config

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIPort     string `env:"API_PORT" envDefault:"8080"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"defaultsecret"`
	JWTExpHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`

	JWTKey []byte        `env:"-"`
	JWTExp time.Duration `env:"-"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"user"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"password"`
	DBName     string `env:"DB_NAME" envDefault:"challenge_gateway"`
	DBSslMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	DBConnStr  string `env:"-"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Remote challenge backend
	ChallengeAPIURL     string        `env:"CHALLENGE_API_URL" envDefault:"http://localhost:8000/api"`
	ChallengeAPITimeout time.Duration `env:"CHALLENGE_API_TIMEOUT" envDefault:"20s"`

	// Phone OTP provider
	OTPAPIURL            string        `env:"OTP_API_URL" envDefault:"https://identitytoolkit.googleapis.com/v1"`
	OTPAPIKey            string        `env:"OTP_API_KEY"`
	OTPResendCooldown    time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"60s"`
	OTPSendRatePerMinute int           `env:"OTP_SEND_RATE_PER_MINUTE" envDefault:"5"`
	GrantTTL             time.Duration `env:"GRANT_TTL" envDefault:"24h"`
	DefaultCountryCode   string        `env:"DEFAULT_COUNTRY_CODE" envDefault:"+91"`

	DraftSaveDelay           time.Duration `env:"DRAFT_SAVE_DELAY" envDefault:"3s"`
	MCQTextSaveDelay         time.Duration `env:"MCQ_TEXT_SAVE_DELAY" envDefault:"1s"`
	ClockResyncInterval      time.Duration `env:"CLOCK_RESYNC_INTERVAL" envDefault:"5m"`
	DisplayTimezone          string        `env:"DISPLAY_TIMEZONE" envDefault:"Asia/Kolkata"`
	TreatPublishedAsUpcoming bool          `env:"TREAT_PUBLISHED_AS_UPCOMING" envDefault:"true"`
	SessionIdleTTL           time.Duration `env:"SESSION_IDLE_TTL" envDefault:"24h"`
	SessionTickInterval      time.Duration `env:"SESSION_TICK_INTERVAL" envDefault:"1s"`
	SessionSweepInterval     time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`

	// Only one replica sweeps expired grants at a time.
	SweepLockKey string        `env:"SWEEP_LOCK_KEY" envDefault:"gateway:sweep_lock"`
	SweepLockTTL time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"30s"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel           slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
}

var AppConfig *Config

// Load reads .env (if present) and the process environment into AppConfig.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Parse()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	AppConfig = cfg
}

// Parse builds a Config from the environment without touching AppConfig.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.OTPSendRatePerMinute <= 0 {
		return nil, fmt.Errorf("OTP_SEND_RATE_PER_MINUTE must be positive, got %d", cfg.OTPSendRatePerMinute)
	}
	if _, err := time.LoadLocation(cfg.DisplayTimezone); err != nil {
		return nil, fmt.Errorf("DISPLAY_TIMEZONE: %w", err)
	}

	cfg.JWTKey = []byte(cfg.JWTSecret)
	cfg.JWTExp = time.Duration(cfg.JWTExpHours) * time.Hour
	cfg.DBConnStr = "host=" + cfg.DBHost +
		" port=" + cfg.DBPort +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" sslmode=" + cfg.DBSslMode
	return &cfg, nil
}

// DisplayLocation is the zone used when rendering dates in user-facing messages.
func (c *Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
