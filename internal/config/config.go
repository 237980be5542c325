package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment    string `envconfig:"ENV" default:"development"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" required:"true"`
	HTTPPort       string `envconfig:"HTTP_PORT" default:"8080"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	// RequestTTL is how long a pending request waits for the owner before
	// the expiry sweep retires it.
	RequestTTL              time.Duration `envconfig:"REQUEST_TTL" default:"48h"`
	ExpirySweepInterval     time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"1h"`
	CompletionSweepInterval time.Duration `envconfig:"COMPLETION_SWEEP_INTERVAL" default:"24h"`

	PropertyServiceURL string `envconfig:"PROPERTY_SERVICE_URL" default:"http://localhost:8081"`
	DefaultCurrency    string `envconfig:"DEFAULT_CURRENCY" default:"USD"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}

	return &cfg, nil
}
