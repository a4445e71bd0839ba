package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the gateway. It is built once in main and
// handed to each component constructor.
type Config struct {
	Port        string
	Environment string
	AppName     string

	Database DatabaseConfig
	Redis    RedisConfig
	Provider ProviderConfig
	OTP      OTPConfig
	Booking  BookingConfig
	Cache    CacheConfig
	Limiter  LimiterConfig
	Twilio   TwilioConfig
	SMTP     SMTPConfig

	AdminJWTSecret string
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	UseMemoryStore bool
	// InstanceConnectionName selects the Cloud SQL unix socket over TCP.
	InstanceConnectionName string
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			d.InstanceConnectionName, d.User, d.Password, d.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type ProviderConfig struct {
	BaseURL string
	Timeout time.Duration
}

type OTPConfig struct {
	MaxAttemptsPerDay int
	MaxResendAttempts int
	ExpiryMinutes     int
	Length            int
	// BypassCode is accepted by verify in addition to the stored code.
	// Empty disables it.
	BypassCode string
}

type BookingConfig struct {
	DefaultTimezone string
	// VerificationWindow is how long a verified OTP authorises a booking.
	VerificationWindow time.Duration
}

// Location resolves DefaultTimezone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

type LimiterConfig struct {
	Max    int
	Window time.Duration
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// Enabled reports whether all Twilio credentials are present.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.PhoneNumber != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay was configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Port:        "8080",
		Environment: "development",
		AppName:     "Appointment System",
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "appointments",
			SSLMode: "disable",
		},
		Provider: ProviderConfig{
			BaseURL: "https://api.external-service.com",
			Timeout: 30 * time.Second,
		},
		OTP: OTPConfig{
			MaxAttemptsPerDay: 5,
			MaxResendAttempts: 5,
			ExpiryMinutes:     10,
			Length:            6,
		},
		Booking: BookingConfig{
			DefaultTimezone:    "Asia/Kathmandu",
			VerificationWindow: 30 * time.Minute,
		},
		Cache: CacheConfig{
			TTL:    time.Hour,
			Prefix: "appointment_system_",
		},
		Limiter: LimiterConfig{
			Max:    60,
			Window: time.Minute,
		},
		SMTP: SMTPConfig{Port: 587},
	}
}

// Load reads .env (if present) and the process environment on top of Default.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	cfg.Port = envString("PORT", cfg.Port)
	cfg.Environment = envString("ENVIRONMENT", cfg.Environment)
	cfg.AppName = envString("APP_NAME", cfg.AppName)

	cfg.Database.Host = envString("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = envString("DB_USER", cfg.Database.User)
	cfg.Database.Password = os.Getenv("DB_PASS")
	cfg.Database.Name = envString("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = envString("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.UseMemoryStore = envBool("USE_MEMORY_STORE", false)
	cfg.Database.InstanceConnectionName = os.Getenv("INSTANCE_CONNECTION_NAME")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	cfg.Provider.BaseURL = strings.TrimRight(envString("EXTERNAL_API_BASE_URL", cfg.Provider.BaseURL), "/")
	cfg.Provider.Timeout = time.Duration(envInt("EXTERNAL_API_TIMEOUT_SECONDS", 30)) * time.Second

	cfg.OTP.MaxAttemptsPerDay = envInt("OTP_MAX_ATTEMPTS_PER_DAY", cfg.OTP.MaxAttemptsPerDay)
	cfg.OTP.MaxResendAttempts = envInt("OTP_MAX_RESEND_ATTEMPTS", cfg.OTP.MaxResendAttempts)
	cfg.OTP.ExpiryMinutes = envInt("OTP_EXPIRY_MINUTES", cfg.OTP.ExpiryMinutes)
	cfg.OTP.Length = envInt("OTP_LENGTH", cfg.OTP.Length)
	cfg.OTP.BypassCode = os.Getenv("OTP_BYPASS_CODE")

	cfg.Booking.DefaultTimezone = envString("DEFAULT_TIMEZONE", cfg.Booking.DefaultTimezone)
	cfg.Booking.VerificationWindow = time.Duration(envInt("OTP_VERIFICATION_WINDOW_MINUTES", 30)) * time.Minute

	cfg.Cache.TTL = time.Duration(envInt("CACHE_TTL_SECONDS", 3600)) * time.Second
	cfg.Cache.Prefix = envString("CACHE_PREFIX", cfg.Cache.Prefix)

	cfg.Limiter.Max = envInt("RATE_LIMIT_MAX", cfg.Limiter.Max)
	cfg.Limiter.Window = time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second

	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.PhoneNumber = os.Getenv("TWILIO_PHONE_NUMBER")

	cfg.SMTP.Host = os.Getenv("SMTP_HOST")
	cfg.SMTP.Port = envInt("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = os.Getenv("SMTP_USERNAME")
	cfg.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	cfg.SMTP.From = os.Getenv("MAIL_FROM")

	cfg.AdminJWTSecret = os.Getenv("ADMIN_JWT_SECRET")

	return cfg, cfg.Validate()
}

// Validate rejects values the OTP and cache layers cannot work with.
func (c Config) Validate() error {
	if c.OTP.Length < 4 || c.OTP.Length > 9 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 9, got %d", c.OTP.Length)
	}
	if c.OTP.MaxAttemptsPerDay < 1 || c.OTP.MaxResendAttempts < 0 {
		return fmt.Errorf("invalid OTP quotas: send=%d resend=%d", c.OTP.MaxAttemptsPerDay, c.OTP.MaxResendAttempts)
	}
	if c.OTP.ExpiryMinutes < 1 {
		return fmt.Errorf("OTP_EXPIRY_MINUTES must be positive, got %d", c.OTP.ExpiryMinutes)
	}
	// Must pass the otp_code tag on verify requests.
	if err := validator.New().Var(c.OTP.BypassCode, "omitempty,numeric,min=4,max=9"); err != nil {
		return fmt.Errorf("OTP_BYPASS_CODE must be 4 to 9 digits")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	if _, err := time.LoadLocation(c.Booking.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.Booking.DefaultTimezone, err)
	}
	return nil
}

// IsDevelopment is true for local runs.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
