package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	JWTSecretKey      string        `env:"JWT_SECRET_KEY,required"`
	ServerPort        int           `env:"SERVER_PORT" envDefault:"8080"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`
	UnitTimeout       time.Duration `env:"UNIT_TIMEOUT" envDefault:"5s"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}
	if cfg.SchedulerInterval < time.Second {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be at least 1s, got %s", cfg.SchedulerInterval)
	}

	return cfg, nil
}
