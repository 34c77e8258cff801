package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "coinvoice/internal/shared/config"
)

type Config struct {
	Server    sharedConfig.ServerConfig    `mapstructure:"server"`
	Database  sharedConfig.DatabaseConfig  `mapstructure:"database"`
	Logger    sharedConfig.LoggerConfig    `mapstructure:"logger"`
	Redis     sharedConfig.RedisConfig     `mapstructure:"redis"`
	Pipeline  sharedConfig.PipelineConfig  `mapstructure:"pipeline"`
	Providers sharedConfig.ProvidersConfig `mapstructure:"providers"`
	Chains    sharedConfig.ChainsConfig    `mapstructure:"chains"`
	Deposit   sharedConfig.DepositConfig   `mapstructure:"deposit"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("COINVOICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Allow env parameter to override server mode if provided
	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.username", "root")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "coinvoice_dev")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Pipeline defaults
	viper.SetDefault("pipeline.tick_interval_seconds", 30)
	viper.SetDefault("pipeline.quote_ttl_seconds", 900)
	viper.SetDefault("pipeline.grace_window_seconds", 3600)
	viper.SetDefault("pipeline.amount_tolerance", 0.99)
	viper.SetDefault("pipeline.retry_budget", 5)
	viper.SetDefault("pipeline.backoff_base_seconds", 30)
	viper.SetDefault("pipeline.backoff_cap_seconds", 900)
	viper.SetDefault("pipeline.call_timeout_seconds", 30)

	// Provider defaults (empty by default, must be configured)
	viper.SetDefault("providers.conversion.base_url", "")
	viper.SetDefault("providers.conversion.api_key", "")
	viper.SetDefault("providers.settlement.base_url", "")
	viper.SetDefault("providers.settlement.api_key", "")
	viper.SetDefault("providers.payout.base_url", "")
	viper.SetDefault("providers.payout.api_key", "")

	// Chain endpoint defaults. Confirmations 0 means the chain's built-in
	// finality threshold applies.
	viper.SetDefault("chains.btc.api_url", "https://mempool.space/api")
	viper.SetDefault("chains.btc.confirmations", 0)
	viper.SetDefault("chains.eth.api_url", "https://api.etherscan.io/api")
	viper.SetDefault("chains.eth.api_key", "")
	viper.SetDefault("chains.eth.confirmations", 0)
	viper.SetDefault("chains.sol.api_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("chains.sol.confirmations", 0)

	// Deposit derivation
	viper.SetDefault("deposit.derivation_seed", "change-me-in-production")
}
