package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	DayTimeZone               *time.Location
	Hostname                  string
	JWTSecret                 string
	ServerHost                string
	ServerPort                int
	WorkerProcesses           int
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		DayTimeZone:               time.Local,
		Hostname:                  hostname,
		ServerPort:                4680,
		WorkerProcesses:           2,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	userConfig, err := LoadUserConfig(userConfigFilePath())
	if err != nil {
		return nil, err
	}
	applyUserConfig(cfg, userConfig)

	return cfg, nil
}

func applyUserConfig(cfg *Config, userConfig *UserConfig) {
	if userConfig.JWTSecret != "" {
		cfg.JWTSecret = userConfig.JWTSecret
	}
	if userConfig.DatabasePath != "" {
		cfg.DatabaseFilePath = userConfig.DatabasePath
	}
	if userConfig.WorkerProcesses > 0 {
		cfg.WorkerProcesses = userConfig.WorkerProcesses
	}
	if userConfig.DayTimeZone != "" {
		if loc, err := time.LoadLocation(userConfig.DayTimeZone); err == nil {
			cfg.DayTimeZone = loc
		}
	}
}
