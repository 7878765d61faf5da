package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	content := "workspace: ./from-file.json\ncaller: \"0x1111111111111111111111111111111111111111\"\nchain-id: 5\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NFTSWAP_CHAIN_ID", "56")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("workspace", "", "")
	if err := flags.Parse([]string{"--workspace", "./from-flag.json"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(cfgFile, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workspace != "./from-flag.json" {
		t.Fatalf("flag should win: %s", cfg.Workspace)
	}
	if cfg.ChainID != 56 {
		t.Fatalf("env should win over file: %d", cfg.ChainID)
	}
	if cfg.Caller != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("file value missing: %s", cfg.Caller)
	}
	if cfg.Journal != "./data/events.jsonl" || cfg.LogLevel != "info" {
		t.Fatalf("defaults missing: %+v", cfg)
	}
}

func TestLoadIndexLists(t *testing.T) {
	t.Setenv("NFTSWAP_POOL", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa, ,0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	t.Setenv("NFTSWAP_RETRY_BACKOFF", "2s")

	cfg, err := LoadIndex(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		t.Fatalf("expected error for explicit missing config file, got %+v", cfg)
	}

	cfg, err = LoadIndex("", nil)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if len(cfg.Pools) != 2 {
		t.Fatalf("pools: %v", cfg.Pools)
	}
	if cfg.RetryBackoff != 2*time.Second || cfg.MaxBackoff != 30*time.Second {
		t.Fatalf("backoff: %v %v", cfg.RetryBackoff, cfg.MaxBackoff)
	}
	if !cfg.CheckpointEnabled || cfg.BatchSize != 2000 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadDecodeTopicMap(t *testing.T) {
	t.Setenv("NFTSWAP_TOPIC0_MAP", "0x01=trade, bad ,0x02=created")
	cfg, err := LoadDecode("", nil)
	if err != nil {
		t.Fatalf("load decode: %v", err)
	}
	if len(cfg.Topic0Map) != 2 || cfg.Topic0Map["0x01"] != "trade" {
		t.Fatalf("topic map: %v", cfg.Topic0Map)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]uint64{
		"":                     0,
		"1700000000":           1700000000,
		"2023-11-14T22:13:20Z": 1700000000,
	}
	for input, want := range cases {
		got, err := ParseTimestamp(input)
		if err != nil || got != want {
			t.Fatalf("ParseTimestamp(%q) = %d, %v", input, got, err)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "NFTSWAP_CALLER=0x2222222222222222222222222222222222222222\nNFTSWAP_RPC_RATE=25\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}

	t.Setenv("NFTSWAP_CALLER", "0x1111111111111111111111111111111111111111")
	t.Cleanup(func() { os.Unsetenv("NFTSWAP_RPC_RATE") })

	prev := DotEnvFile
	DotEnvFile = envFile
	t.Cleanup(func() { DotEnvFile = prev })

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Caller != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("process env should win over .env: %s", cfg.Caller)
	}

	index, err := LoadIndex("", nil)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if index.RPCRate != 25 || index.RPCBurst != 1 {
		t.Fatalf("rpc limits: %v %d", index.RPCRate, index.RPCBurst)
	}
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env: %v", err)
	}
}
