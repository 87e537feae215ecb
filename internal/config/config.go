// Package config provides a reusable loader for drive-platform node
// configuration: viper-backed, YAML on disk, environment overrides
// automatic.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/dashpay/drive-platform/internal/errs"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a drive-platform node.
type Config struct {
	Storage struct {
		DataDir          string `mapstructure:"data_dir" json:"data_dir"`
		SnapshotInterval int    `mapstructure:"snapshot_interval" json:"snapshot_interval"`
	} `mapstructure:"storage" json:"storage"`

	Fees struct {
		StorageCostPerByte uint64 `mapstructure:"storage_cost_per_byte" json:"storage_cost_per_byte"`
		EpochsPerEra       uint64 `mapstructure:"epochs_per_era" json:"epochs_per_era"`
		PenaltyAmount      uint64 `mapstructure:"penalty_amount" json:"penalty_amount"`
	} `mapstructure:"fees" json:"fees"`

	Epoch struct {
		BlocksPerEpoch      uint64 `mapstructure:"blocks_per_epoch" json:"blocks_per_epoch"`
		ProposerPayoutBatch int    `mapstructure:"proposer_payout_batch" json:"proposer_payout_batch"`
		CoreSubsidyPerBlock uint64 `mapstructure:"core_subsidy_per_block" json:"core_subsidy_per_block"`
	} `mapstructure:"epoch" json:"epoch"`

	Voting struct {
		PollDurationBlocks uint64 `mapstructure:"poll_duration_blocks" json:"poll_duration_blocks"`
		MaxLockCount       int    `mapstructure:"max_lock_count" json:"max_lock_count"`
	} `mapstructure:"voting" json:"voting"`

	Withdrawals struct {
		RejectionsDir string `mapstructure:"rejections_dir" json:"rejections_dir"`
		RetryTTLBlocks uint64 `mapstructure:"retry_ttl_blocks" json:"retry_ttl_blocks"`
	} `mapstructure:"withdrawals" json:"withdrawals"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns a Config populated with the platform's baseline
// parameters, used when no file is present (e.g. in tests).
func Default() Config {
	var c Config
	c.Storage.DataDir = "./data"
	c.Storage.SnapshotInterval = 1000
	c.Fees.StorageCostPerByte = 1
	c.Fees.EpochsPerEra = 20
	c.Fees.PenaltyAmount = 10
	c.Epoch.BlocksPerEpoch = 576
	c.Epoch.ProposerPayoutBatch = 100
	c.Epoch.CoreSubsidyPerBlock = 0
	c.Voting.PollDurationBlocks = 8640
	c.Voting.MaxLockCount = 3
	c.Withdrawals.RejectionsDir = "./data/withdrawal-rejections"
	c.Withdrawals.RetryTTLBlocks = 576
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config = Default()

// Load reads configuration from configPath (a directory containing
// config.yaml) merged with DRIVE_* environment overrides.
func Load(configPath string) (*Config, error) {
	AppConfig = Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("DRIVE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errs.Wrap(err, "load config")
		}
	}
	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, errs.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DRIVE_CONFIG_PATH environment
// variable, falling back to defaults when unset.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("DRIVE_CONFIG_PATH")
	if path == "" {
		return &AppConfig, nil
	}
	return Load(path)
}

func (c Config) String() string {
	return fmt.Sprintf("Config{data_dir=%s epochs_per_era=%d blocks_per_epoch=%d}",
		c.Storage.DataDir, c.Fees.EpochsPerEra, c.Epoch.BlocksPerEpoch)
}
