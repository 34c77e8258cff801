package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PipelineConfig tunes the settlement pipeline sweep and the payment
// reconciler. AmountTolerance is the fraction of the quoted crypto amount a
// transfer must reach to be accepted (rate drift allowance).
type PipelineConfig struct {
	TickIntervalSeconds int     `mapstructure:"tick_interval_seconds"`
	QuoteTTLSeconds     int     `mapstructure:"quote_ttl_seconds"`
	GraceWindowSeconds  int     `mapstructure:"grace_window_seconds"`
	AmountTolerance     float64 `mapstructure:"amount_tolerance"`
	RetryBudget         int     `mapstructure:"retry_budget"`
	BackoffBaseSeconds  int     `mapstructure:"backoff_base_seconds"`
	BackoffCapSeconds   int     `mapstructure:"backoff_cap_seconds"`
	CallTimeoutSeconds  int     `mapstructure:"call_timeout_seconds"`
}

func (p *PipelineConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalSeconds) * time.Second
}

func (p *PipelineConfig) QuoteTTL() time.Duration {
	return time.Duration(p.QuoteTTLSeconds) * time.Second
}

func (p *PipelineConfig) GraceWindow() time.Duration {
	return time.Duration(p.GraceWindowSeconds) * time.Second
}

func (p *PipelineConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseSeconds) * time.Second
}

func (p *PipelineConfig) BackoffCap() time.Duration {
	return time.Duration(p.BackoffCapSeconds) * time.Second
}

func (p *PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSeconds) * time.Second
}

type ProviderEndpointConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ProvidersConfig struct {
	Conversion ProviderEndpointConfig `mapstructure:"conversion"`
	Settlement ProviderEndpointConfig `mapstructure:"settlement"`
	Payout     ProviderEndpointConfig `mapstructure:"payout"`
}

type ChainEndpointConfig struct {
	APIURL        string `mapstructure:"api_url"`
	APIKey        string `mapstructure:"api_key"`
	Confirmations int    `mapstructure:"confirmations"`
}

type ChainsConfig struct {
	BTC ChainEndpointConfig `mapstructure:"btc"`
	ETH ChainEndpointConfig `mapstructure:"eth"`
	SOL ChainEndpointConfig `mapstructure:"sol"`
}

type DepositConfig struct {
	// DerivationSeed feeds the deterministic per-invoice address derivation.
	// Must stay stable for the lifetime of open invoices.
	DerivationSeed string `mapstructure:"derivation_seed"`
}
