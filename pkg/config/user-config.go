package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// UserConfig holds the operator-editable settings layered on top of the
// environment defaults. Values come from config.yaml and STUDYKEEP_*
// environment variables, with the environment winning.
type UserConfig struct {
	JWTSecret       string `koanf:"jwt_secret"`
	DatabasePath    string `koanf:"database_path"`
	WorkerProcesses int    `koanf:"worker_processes"`
	DayTimeZone     string `koanf:"day_time_zone"`
}

const envPrefix = "STUDYKEEP_"

func userConfigFilePath() string {
	configDir := os.Getenv("CONFIG_DIRECTORY")
	if configDir == "" {
		configDir = "/config"
	}

	return filepath.Join(configDir, "config.yaml")
}

// LoadUserConfig reads the user config file and environment overrides. A
// missing file is not an error; it just means defaults apply.
func LoadUserConfig(configFilePath string) (*UserConfig, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configFilePath); err == nil {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to parse user config: %s", configFilePath)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.WithStack(err)
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	userConfig := &UserConfig{}
	if err := k.Unmarshal("", userConfig); err != nil {
		return nil, errors.WithStack(err)
	}

	return userConfig, nil
}
