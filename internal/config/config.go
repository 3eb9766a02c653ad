// Package config loads provider settings from a config file, the
// environment and .env files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/dberror"
)

const (
	EnvPrefix  = "PGPROVIDER"
	configName = "pgprovider"
)

// Config is the file shape.
type Config struct {
	Debug           DebugConfig                 `mapstructure:"debug"`
	Log             LogConfig                   `mapstructure:"log"`
	ApplicationName string                      `mapstructure:"application_name"`
	InstanceName    string                      `mapstructure:"instance_name"`
	DataProviders   map[string]connector.Config `mapstructure:"data_providers"`
	UseSimpleAuth   bool                        `mapstructure:"use_simple_auth"`
}

type DebugConfig struct {
	Need             bool `mapstructure:"need"`
	MsgsExtendedInfo bool `mapstructure:"msgs_extended_info"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Provider returns the settings of the named data provider.
func (c *Config) Provider(name string) (connector.Config, error) {
	cfg, ok := c.DataProviders[strings.ToLower(name)]
	if !ok {
		return connector.Config{}, dberror.Configuration("unknown data provider %q", name)
	}
	return cfg, nil
}

// ProviderNames lists the configured providers in order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.DataProviders))
	for name := range c.DataProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the configuration. With an empty path the file pgprovider.{yaml,json,toml}
// is searched in the working directory, $HOME and $HOME/.config/pgprovider and may
// be absent. .env and then .env.local are applied to the environment first;
// variables named PGPROVIDER_<KEY> override file values.
func Load(fs afero.Fs, path string) (*Config, error) {
	if err := loadDotEnv(fs, ".env", false); err != nil {
		return nil, err
	}
	if err := loadDotEnv(fs, ".env.local", true); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("application_name", configName)
	v.SetDefault("instance_name", "")
	v.SetDefault("debug.need", false)
	v.SetDefault("debug.msgs_extended_info", false)
	v.SetDefault("use_simple_auth", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, dberror.Configuration("decode config: %v", err)
	}
	for name, pc := range cfg.DataProviders {
		if err := pc.Validate(); err != nil {
			return nil, fmt.Errorf("data_providers.%s: %w", name, err)
		}
		cfg.DataProviders[name] = pc
	}
	return cfg, nil
}

// loadDotEnv copies the variables of a .env file into the environment.
// Without override, variables that are already set keep their value.
func loadDotEnv(fs afero.Fs, name string, override bool) error {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	vars, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	for k, val := range vars {
		if _, set := os.LookupEnv(k); set && !override {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}
