package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation. Windows go to
// Postgres when PGDSN is set, otherwise to the JSONL file at Out.
type AggregateConfig struct {
	Input         string
	Out           string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom string
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":         "./data/typed_events.jsonl",
		"out":        "./data/pool_activity.jsonl",
		"batch-size": 1000,
		"window":     "1h",
		"state-name": "pool_activity",
		"log-level":  "info",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	return AggregateConfig{
		Input:         v.GetString("in"),
		Out:           v.GetString("out"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// WindowSeconds parses Window as a duration of whole seconds.
func (c AggregateConfig) WindowSeconds() (uint64, error) {
	window, err := time.ParseDuration(c.Window)
	if err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	if window < time.Second {
		return 0, fmt.Errorf("window must be at least 1s, got %s", c.Window)
	}
	return uint64(window / time.Second), nil
}

// ReconcileConfig holds configuration for the reconcile command.
type ReconcileConfig struct {
	RPCURL    string
	RPCRate   float64
	RPCBurst  int
	Workspace string
	Block     uint64
	LogLevel  string
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"workspace": "./data/workspace.json",
		"rpc-burst": 1,
		"log-level": "info",
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	return ReconcileConfig{
		RPCURL:    v.GetString("rpc"),
		RPCRate:   v.GetFloat64("rpc-rate"),
		RPCBurst:  v.GetInt("rpc-burst"),
		Workspace: v.GetString("workspace"),
		Block:     v.GetUint64("block"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
