package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Mfa      MfaConfig
	Dispatch DispatchConfig
	Geo      GeoConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	TokenSecret          string
	CipherKey            []byte // 32-byte AES-256 key for session data and TOTP secrets
	SessionSlidingWindow time.Duration
	SessionAbsoluteMax   time.Duration
	CsrfTokenTTL         time.Duration
	SecureRequestTTL     time.Duration
	SweepInterval        time.Duration
	LoginLimitPerIP      int
	LoginWindow          time.Duration
	PulseLimitPerSession int
	PulseWindow          time.Duration
	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
}

type MfaConfig struct {
	CodeTTL        time.Duration
	CodeLength     int
	MaxAttempts    int
	IssueLimit     int
	IssueWindow    time.Duration
	VerifyLimit    int
	VerifyWindow   time.Duration
	TOTPIssuer     string
	DispatchTimeout time.Duration
}

type DispatchConfig struct {
	AWSRegion   string
	FromAddress string
}

type GeoConfig struct {
	ResolverURL    string
	ResolveTimeout time.Duration
	CacheTTL       time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	tokenSecret := getEnv("TOKEN_SECRET", "")
	if tokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cipherKey, err := parseCipherKey(getEnv("CIPHER_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCSV(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			TokenSecret:          tokenSecret,
			CipherKey:            cipherKey,
			SessionSlidingWindow: getEnvAsDuration("SESSION_SLIDING_WINDOW", 30*time.Minute),
			SessionAbsoluteMax:   getEnvAsDuration("SESSION_ABSOLUTE_MAX", 12*time.Hour),
			CsrfTokenTTL:         getEnvAsDuration("CSRF_TOKEN_TTL", 2*time.Hour),
			SecureRequestTTL:     getEnvAsDuration("SECURE_REQUEST_TTL", 10*time.Minute),
			SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 1*time.Minute),
			LoginLimitPerIP:      getEnvAsInt("LOGIN_LIMIT_PER_IP", 10),
			LoginWindow:          getEnvAsDuration("LOGIN_WINDOW", 1*time.Minute),
			PulseLimitPerSession: getEnvAsInt("PULSE_LIMIT_PER_SESSION", 12),
			PulseWindow:          getEnvAsDuration("PULSE_WINDOW", 1*time.Minute),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		Mfa: MfaConfig{
			CodeTTL:         getEnvAsDuration("MFA_CODE_TTL", 5*time.Minute),
			CodeLength:      getEnvAsInt("MFA_CODE_LENGTH", 6),
			MaxAttempts:     getEnvAsInt("MFA_MAX_ATTEMPTS", 3),
			IssueLimit:      getEnvAsInt("MFA_ISSUE_LIMIT", 5),
			IssueWindow:     getEnvAsDuration("MFA_ISSUE_WINDOW", 10*time.Minute),
			VerifyLimit:     getEnvAsInt("MFA_VERIFY_LIMIT", 10),
			VerifyWindow:    getEnvAsDuration("MFA_VERIFY_WINDOW", 10*time.Minute),
			TOTPIssuer:      getEnv("TOTP_ISSUER", "authgate"),
			DispatchTimeout: getEnvAsDuration("DISPATCH_TIMEOUT", 5*time.Second),
		},
		Dispatch: DispatchConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("DISPATCH_FROM_ADDRESS", "no-reply@localhost"),
		},
		Geo: GeoConfig{
			ResolverURL:    getEnv("GEO_RESOLVER_URL", "http://ip-api.com/json"),
			ResolveTimeout: getEnvAsDuration("GEO_RESOLVE_TIMEOUT", 3*time.Second),
			CacheTTL:       getEnvAsDuration("GEO_CACHE_TTL", 1*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateTokenSecret(tokenSecret, env); err != nil {
		return nil, err
	}

	if cfg.Auth.SessionSlidingWindow > cfg.Auth.SessionAbsoluteMax {
		return nil, fmt.Errorf("SESSION_SLIDING_WINDOW must not exceed SESSION_ABSOLUTE_MAX")
	}

	return cfg, nil
}

// parseCipherKey decodes a hex-encoded 32-byte AES-256 key
func parseCipherKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("CIPHER_KEY is required")
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("CIPHER_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CIPHER_KEY must decode to 32 bytes, got %d", len(key))
	}

	return key, nil
}

// validateTokenSecret enforces minimum security standards for the signing secret
func validateTokenSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseCSV(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
