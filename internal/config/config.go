// Package config loads and validates the indexer's run configuration.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"gopkg.in/yaml.v3"
)

// GlobalConfig is the package-level config handle, set by LoadConfig.
// The other packages take their settings as explicit arguments instead.
var GlobalConfig *Config

// Config is the full set of tunables for one indexing run.
type Config struct {
	Network string `yaml:"network"`

	DataDir       string `yaml:"data_dir"`
	DatasetDir    string `yaml:"dataset_dir"`
	SnapshotDir   string `yaml:"snapshot_dir"`
	PriceOracleDir string `yaml:"price_oracle_dir"`

	ShardCount int `yaml:"shard_count"`
	BatchSize  int `yaml:"batch_size"`
	Workers    int `yaml:"workers"`

	// NumberOfUnsafeBlocks is loaded (default 100) but not passed to the
	// driver, which gates checkpointing on its own fixed 100-block horizon.
	NumberOfUnsafeBlocks int `yaml:"number_of_unsafe_blocks"`
	BlocksPerDay         int `yaml:"blocks_per_day"`

	ZMQAddress []string `yaml:"zmq_address"`

	RPC RPCConfig `yaml:"rpc"`
}

// RPCConfig describes how to reach the full-node process (the launcher and
// the node itself are external collaborators; only connection info lives
// here).
type RPCConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

func (c *Config) GetChainParams() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %s", c.Network)
	}
}

// LoadConfig reads defaults, overlays a YAML file (if present at path or at
// the -config flag), then overlays environment variables, in that order.
func LoadConfig(path string) (*Config, error) {
	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := &Config{
		Network:              "mainnet",
		DataDir:              "data/keyed_stores",
		DatasetDir:           "data/datasets",
		SnapshotDir:          "data/snapshots",
		PriceOracleDir:       "data/prices",
		ShardCount:           16,
		BatchSize:            1000,
		Workers:              4,
		NumberOfUnsafeBlocks: 100,
		BlocksPerDay:         144,
		ZMQAddress:           []string{"tcp://localhost:28332"},
		RPC: RPCConfig{
			Host: "localhost",
			Port: "8332",
		},
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = path
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if network := os.Getenv("NETWORK"); network != "" {
		cfg.Network = network
	}
	if unsafe := os.Getenv("NUMBER_OF_UNSAFE_BLOCKS"); unsafe != "" {
		if v, err := strconv.Atoi(unsafe); err == nil && v >= 0 {
			cfg.NumberOfUnsafeBlocks = v
		}
	}
	if user := os.Getenv("RPC_USER"); user != "" {
		cfg.RPC.User = user
	}
	if pass := os.Getenv("RPC_PASS"); pass != "" {
		cfg.RPC.Password = pass
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	GlobalConfig = cfg
	return cfg, nil
}

// SatsPerCoin and BlocksPerDay-style domain constants that aren't
// environment-tunable.
const (
	SatsPerCoin = 100_000_000
)
