package config

import (
	"os"
	"time"
)

type Config struct {
	Server ServerConfig
	API    APIConfig
	Push   PushConfig
	Sync   SyncConfig
	JWT    JWTConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type APIConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type PushConfig struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
}

// SyncConfig holds the timings that drive reconciliation triggers.
type SyncConfig struct {
	PollInterval    time.Duration // authoritative refresh cadence while a session is active
	SettleDelay     time.Duration // refresh delay after a locally observed message event
	NavSettleDelay  time.Duration // refresh delay after opening a conversation
	PageSize        int
	MarkReadRetries int
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         envOr("PORT", "8099"),
			Env:          envOr("ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		API: APIConfig{
			BaseURL:        envOr("API_BASE_URL", "http://localhost:8099"),
			RequestTimeout: 15 * time.Second,
		},
		Push: PushConfig{
			URL:              envOr("PUSH_URL", "ws://localhost:8099/ws"),
			ReconnectDelay:   5 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:    10 * time.Second,
			SettleDelay:     2 * time.Second,
			NavSettleDelay:  1 * time.Second,
			PageSize:        50,
			MarkReadRetries: 1,
		},
		JWT: JWTConfig{
			Secret: envOr("JWT_SECRET", "change-me-in-production"),
			Expiry: 168 * time.Hour,
			Issuer: "tradewind",
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
