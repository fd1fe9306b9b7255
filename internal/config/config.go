package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	OwnerChatID   int64  `env:"OWNER_CHAT_ID,required"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailgram.db"`

	// Polling
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
	ErrReportInterval time.Duration `env:"ERR_REPORT_INTERVAL" envDefault:"1h"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	SocketTimeout     time.Duration `env:"SOCKET_TIMEOUT" envDefault:"10s"`
	PollWorkers       int           `env:"POLL_WORKERS" envDefault:"4"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.PollWorkers < 1 {
		return nil, fmt.Errorf("POLL_WORKERS must be at least 1, got %d", cfg.PollWorkers)
	}

	return cfg, nil
}
