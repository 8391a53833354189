package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultPort           = "3333"
	defaultRateLimitRPS   = 10
	defaultRateLimitBurst = 20
)

// Server holds the API server settings read from the environment.
type Server struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	LogDir      string
	Debug       bool

	MetricsUser string
	MetricsPass string

	FCMServiceAccountJSON string
	FCMCredentialsFile    string

	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadServer reads an optional .env file and then the process environment.
func LoadServer(envFiles ...string) (Server, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Server{
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		Port:                  strings.TrimSpace(os.Getenv("PORT")),
		LogDir:                strings.TrimSpace(os.Getenv("LOG_DIR")),
		MetricsUser:           os.Getenv("METRICS_USER"),
		MetricsPass:           os.Getenv("METRICS_PASS"),
		FCMServiceAccountJSON: os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		FCMCredentialsFile:    strings.TrimSpace(os.Getenv("FCM_CREDENTIALS_FILE")),
		RateLimitRPS:          defaultRateLimitRPS,
		RateLimitBurst:        defaultRateLimitBurst,
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	cfg.Debug, _ = strconv.ParseBool(os.Getenv("DEBUG"))

	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return Server{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q", v)
		}
		cfg.RateLimitRPS = rps
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil || burst <= 0 {
			return Server{}, fmt.Errorf("invalid RATE_LIMIT_BURST %q", v)
		}
		cfg.RateLimitBurst = burst
	}

	if cfg.DatabaseURL == "" {
		return Server{}, errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return Server{}, errors.New("JWT_SECRET environment variable is required")
	}
	return cfg, nil
}

func (s Server) PushEnabled() bool {
	return s.FCMServiceAccountJSON != "" || s.FCMCredentialsFile != ""
}
