package config

import (
	"os"
	"path/filepath"
	"testing"
)

// LoadConfig registers its -config flag on the package-level flag.CommandLine
// on every call, so only one subtest in this file may invoke it: a second
// call would panic with "flag redefined". Every other scenario here
// exercises LoadConfig's helpers directly instead.
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	yamlContent := "network: testnet\nshard_count: 32\nrpc:\n  host: 10.0.0.5\n  port: \"18332\"\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Setenv("NETWORK", "regtest")
	defer os.Unsetenv("NETWORK")

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	// The YAML file overlays the defaults.
	if cfg.ShardCount != 32 {
		t.Fatalf("ShardCount = %d, want 32 (from YAML)", cfg.ShardCount)
	}
	if cfg.RPC.Host != "10.0.0.5" || cfg.RPC.Port != "18332" {
		t.Fatalf("RPC = %+v, want host 10.0.0.5 port 18332", cfg.RPC)
	}

	// The environment variable overlays the YAML value.
	if cfg.Network != "regtest" {
		t.Fatalf("Network = %q, want regtest (env should override the YAML file)", cfg.Network)
	}

	if cfg.BatchSize != 1000 {
		t.Fatalf("BatchSize = %d, want the untouched default 1000", cfg.BatchSize)
	}

	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Fatalf("LoadConfig should create DataDir: %v", err)
	}

	if GlobalConfig != cfg {
		t.Fatal("LoadConfig should publish its result as GlobalConfig")
	}
}

func TestGetChainParamsUnknownNetwork(t *testing.T) {
	cfg := &Config{Network: "not-a-real-network"}
	if _, err := cfg.GetChainParams(); err == nil {
		t.Fatal("expected an error for an unrecognized network")
	}
}

func TestGetChainParamsKnownNetworks(t *testing.T) {
	for _, n := range []string{"mainnet", "testnet", "regtest"} {
		cfg := &Config{Network: n}
		if _, err := cfg.GetChainParams(); err != nil {
			t.Errorf("GetChainParams() for %q: %v", n, err)
		}
	}
}
