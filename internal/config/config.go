package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	LogLevel    string
	SentryDSN   string

	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	BaseURL      string
	PostLoginURL string
	CookieSecure bool

	Google OAuthConfig

	SMTP    SMTPConfig
	Storage StorageConfig

	RedisURL                string
	RoleCacheTTL            time.Duration
	StrictStatusTransitions bool
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// StorageConfig selects where report images are written. Driver is "local"
// or "ftp".
type StorageConfig struct {
	Driver    string
	LocalDir  string
	PublicURL string

	FTPAddr     string
	FTPUser     string
	FTPPassword string
	FTPBaseDir  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	baseURL := getEnv("BASE_URL", "http://localhost:8080")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		JWTSecret:        getEnvOrPanic("JWT_SECRET"),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),

		BaseURL:      baseURL,
		PostLoginURL: getEnv("POST_LOGIN_URL", "/"),
		CookieSecure: getBool("COOKIE_SECURE", false),

		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", baseURL+"/api/v1/auth/google/callback"),
		},

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},

		Storage: StorageConfig{
			Driver:      getEnv("STORAGE_DRIVER", "local"),
			LocalDir:    getEnv("STORAGE_LOCAL_DIR", "./uploads"),
			PublicURL:   getEnv("STORAGE_PUBLIC_URL", baseURL+"/uploads"),
			FTPAddr:     getEnv("FTP_ADDR", ""),
			FTPUser:     getEnv("FTP_USER", ""),
			FTPPassword: getEnv("FTP_PASSWORD", ""),
			FTPBaseDir:  getEnv("FTP_BASE_DIR", "report-images"),
		},

		RedisURL:                getEnv("REDIS_URL", ""),
		RoleCacheTTL:            getDuration("ROLE_CACHE_TTL", 5*time.Minute),
		StrictStatusTransitions: getBool("STRICT_STATUS_TRANSITIONS", false),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvOrPanic(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}
