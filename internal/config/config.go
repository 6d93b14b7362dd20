package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pion/logging"
)

// Config holds the application configuration.
type Config struct {
	ChannelName string
	Region      string
	ClientID    string

	IdentityPoolID  string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	AnswerTimeout    time.Duration
	CandidateTimeout time.Duration
	PingInterval     time.Duration

	LogLevel logging.LogLevel
}

// Load reads configuration from a .env file (if present) and environment variables.
// Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	channel := os.Getenv("KVS_CHANNEL_NAME")
	if channel == "" {
		return nil, fmt.Errorf("KVS_CHANNEL_NAME environment variable is required")
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable is required")
	}

	clientID := os.Getenv("KVS_CLIENT_ID")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	cfg := &Config{
		ChannelName:      channel,
		Region:           region,
		ClientID:         clientID,
		IdentityPoolID:   os.Getenv("KVS_IDENTITY_POOL_ID"),
		AccessKeyID:      os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:     os.Getenv("AWS_SESSION_TOKEN"),
		AnswerTimeout:    30 * time.Second,
		CandidateTimeout: 0,
		PingInterval:     5 * time.Minute,
		LogLevel:         logging.LogLevelInfo,
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"KVS_ANSWER_TIMEOUT", &cfg.AnswerTimeout},
		{"KVS_CANDIDATE_TIMEOUT", &cfg.CandidateTimeout},
		{"KVS_PING_INTERVAL", &cfg.PingInterval},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(os.Getenv(d.name))
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.name, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s must not be negative", d.name)
		}
		*d.dst = v
	}

	if raw := os.Getenv("KVS_LOG_LEVEL"); raw != "" {
		level, err := ParseLogLevel(raw)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
}
