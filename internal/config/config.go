package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Microsoft OAuth application used for OneDrive access
	MicrosoftClientID     string `envconfig:"MS_CLIENT_ID"`
	MicrosoftClientSecret string `envconfig:"MS_CLIENT_SECRET"`
	MicrosoftTenantID     string `envconfig:"MS_TENANT_ID" default:"common"`
	MicrosoftRedirectURI  string `envconfig:"MS_REDIRECT_URI"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"corpus-files"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// RefreshInterval enables the background re-ingestion worker when
	// set to a positive duration. Zero disables it.
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"0"`
	// RefreshAfter is how stale a ready source must be before the
	// worker re-ingests it.
	RefreshAfter time.Duration `envconfig:"REFRESH_AFTER" default:"24h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CORPUS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasMicrosoft() bool {
	return c.MicrosoftClientID != "" && c.MicrosoftClientSecret != "" && c.MicrosoftRedirectURI != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) RefreshEnabled() bool {
	return c.RefreshInterval > 0
}
