package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/mercure/internal/cron/config"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	SMTPConfig       *SMTPConfig
	StorageConfig    *StorageConfig
	CloneConfig      *CloneConfig
	AttachmentConfig *AttachmentConfig
	CronConfig       *cron_config.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		SMTPConfig:       &SMTPConfig{},
		StorageConfig:    &StorageConfig{},
		CloneConfig:      &CloneConfig{},
		AttachmentConfig: &AttachmentConfig{},
		CronConfig:       &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mercure config: %v", err)
	}

	return config, nil
}
