package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the CLI, e.g.
// NFTSWAP_WORKSPACE or NFTSWAP_PG_DSN.
const EnvPrefix = "NFTSWAP"

// Config holds the settings shared by the local ledger commands
// (factory, pool, exchange, token, wallet).
type Config struct {
	Workspace string
	Journal   string
	PGDSN     string
	ChainID   uint64
	Factory   string
	Creator   string
	Caller    string
	LogLevel  string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"workspace": "./data/workspace.json",
		"journal":   "./data/events.jsonl",
		"chain-id":  uint64(31337),
		"log-level": "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Workspace: v.GetString("workspace"),
		Journal:   v.GetString("journal"),
		PGDSN:     v.GetString("pg-dsn"),
		ChainID:   v.GetUint64("chain-id"),
		Factory:   v.GetString("factory"),
		Creator:   v.GetString("creator"),
		Caller:    v.GetString("caller"),
		LogLevel:  v.GetString("log-level"),
	}
	if cfg.Workspace == "" {
		return Config{}, fmt.Errorf("workspace path is required")
	}
	return cfg, nil
}

// DotEnvFile is loaded into the process environment before each command
// reads its configuration. Variables already set are left alone.
var DotEnvFile = ".env"

// newViper layers flags over environment over the config file over defaults.
// Without an explicit file, ./config.yaml is read when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
