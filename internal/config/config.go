// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the server needs at startup. Values are read
// once; components receive the pieces they need rather than the whole struct.
type Config struct {
	Addr        string
	Environment string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	OTPTTL      time.Duration
	CooldownTTL time.Duration

	SMTPServer string
	SMTPUser   string
	SMTPPass   string
	MailFrom   string

	AllowedOrigins []string
}

// Load builds a Config from environment variables, applying defaults for
// anything unset. Secrets have no defaults; the caller decides whether an
// empty secret is fatal.
func Load() Config {
	return Config{
		Addr:             ":" + envOr("PORT", "8080"),
		Environment:      envOr("APP_ENV", "development"),
		MongoURI:         envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:          envOr("MONGO_DB", "chattrix"),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          envInt("REDIS_DB", 0),
		JWTAccessSecret:  os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
		AccessTTL:        envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:       envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		OTPTTL:           envDuration("OTP_TTL", 5*time.Minute),
		CooldownTTL:      envDuration("OTP_COOLDOWN", time.Minute),
		SMTPServer:       os.Getenv("SMTP_SERVER"),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPass:         os.Getenv("SMTP_PASSWORD"),
		MailFrom:         envOr("MAIL_FROM", os.Getenv("SMTP_USER")),
		AllowedOrigins:   []string{envOr("CLIENT_ORIGIN", "http://localhost:5173")},
	}
}

// Production reports whether cookies must carry the Secure flag.
func (c Config) Production() bool {
	return c.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
