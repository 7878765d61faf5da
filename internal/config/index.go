package config

import (
	"time"

	"github.com/spf13/pflag"
)

// IndexConfig holds configuration for the index command.
type IndexConfig struct {
	RPCURL            string
	RPCRate           float64
	RPCBurst          int
	FromBlock         uint64
	ToBlock           uint64
	Pools             []string
	Topic0            []string
	BatchSize         uint64
	Out               string
	PGDSN             string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxBackoff        time.Duration
	MetricsAddr       string
	LogLevel          string
}

// LoadIndex merges config file, environment variables, and flags into IndexConfig.
func LoadIndex(cfgFile string, flags *pflag.FlagSet) (IndexConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(2000),
		"rpc-burst":          1,
		"out":                "./data/logs.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"max-backoff":        30 * time.Second,
		"log-level":          "info",
	})
	if err != nil {
		return IndexConfig{}, err
	}

	return IndexConfig{
		RPCURL:            v.GetString("rpc"),
		RPCRate:           v.GetFloat64("rpc-rate"),
		RPCBurst:          v.GetInt("rpc-burst"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Pools:             getStringSlice(v, "pool"),
		Topic0:            getStringSlice(v, "topic0"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		PGDSN:             v.GetString("pg-dsn"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MaxBackoff:        v.GetDuration("max-backoff"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}
