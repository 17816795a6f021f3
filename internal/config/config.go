package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Liability rounding policies for splitting a loan's total payable among guarantors.
const (
	RoundingEqual           = "equal"
	RoundingRemainderToLast = "remainder_to_last"
)

// Config holds application configuration
type Config struct {
	Port       string
	DBConn     string
	LogLevel   string
	JWTSecret  string
	HMACSecret string

	Timezone string
	Location *time.Location

	DeductionCron          string
	LiabilityRounding      string
	MaxActiveGuarantees    int
	CreditLimitSalaryShare decimal.Decimal

	Mpesa MpesaConfig
	Redis RedisConfig

	NATSURL    string
	SMSSubject string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
}

// MpesaConfig holds the mobile-money gateway settings
type MpesaConfig struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	PassKey            string
	CallbackURL        string
	ResultURL          string
	QueueTimeoutURL    string
	ValidationURL      string
	ConfirmationURL    string
	InitiatorName      string
	SecurityCredential string
	TokenAttempts      int
	TokenBaseDelay     time.Duration
	Timeout            time.Duration
}

// RedisConfig holds the token cache settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		DBConn:     getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=advance sslmode=disable"),
		LogLevel:   getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:  getEnv("JWT_SECRET", "secret"),
		HMACSecret: getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		Timezone:   getEnv("TIMEZONE", "Africa/Nairobi"),

		DeductionCron:       getEnv("DEDUCTION_CRON", "0 6 * * *"),
		LiabilityRounding:   getEnv("LIABILITY_ROUNDING", RoundingEqual),
		MaxActiveGuarantees: getEnvInt("MAX_ACTIVE_GUARANTEES", 3),

		Mpesa: MpesaConfig{
			BaseURL:            getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:        getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:     getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:          getEnv("MPESA_SHORTCODE", "174379"),
			PassKey:            getEnv("MPESA_PASSKEY", ""),
			CallbackURL:        getEnv("MPESA_CALLBACK_URL", "http://localhost:8080/webhooks/mpesa/stk"),
			ResultURL:          getEnv("MPESA_RESULT_URL", "http://localhost:8080/webhooks/mpesa/b2c/result"),
			QueueTimeoutURL:    getEnv("MPESA_TIMEOUT_URL", "http://localhost:8080/webhooks/mpesa/b2c/timeout"),
			ValidationURL:      getEnv("MPESA_VALIDATION_URL", "http://localhost:8080/webhooks/mpesa/c2b/validation"),
			ConfirmationURL:    getEnv("MPESA_CONFIRMATION_URL", "http://localhost:8080/webhooks/mpesa/c2b/confirmation"),
			InitiatorName:      getEnv("MPESA_INITIATOR_NAME", "testapi"),
			SecurityCredential: getEnv("MPESA_SECURITY_CREDENTIAL", ""),
			TokenAttempts:      getEnvInt("MPESA_TOKEN_ATTEMPTS", 4),
			TokenBaseDelay:     getEnvDuration("MPESA_TOKEN_BASE_DELAY", time.Second),
			Timeout:            getEnvDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		NATSURL:    getEnv("NATS_URL", "nats://localhost:4222"),
		SMSSubject: getEnv("SMS_SUBJECT", "sms.outbound"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "loans@example.com"),
	}

	share, err := decimal.NewFromString(getEnv("CREDIT_LIMIT_SALARY_SHARE", "0.30"))
	if err != nil {
		return nil, fmt.Errorf("invalid CREDIT_LIMIT_SALARY_SHARE: %w", err)
	}
	cfg.CreditLimitSalaryShare = share

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	switch cfg.LiabilityRounding {
	case RoundingEqual, RoundingRemainderToLast:
	default:
		return nil, fmt.Errorf("LIABILITY_ROUNDING must be %q or %q", RoundingEqual, RoundingRemainderToLast)
	}
	if cfg.MaxActiveGuarantees < 1 {
		return nil, fmt.Errorf("MAX_ACTIVE_GUARANTEES must be positive")
	}
	if cfg.Mpesa.TokenAttempts < 1 {
		return nil, fmt.Errorf("MPESA_TOKEN_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultVal
}
