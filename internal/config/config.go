package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ledwatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Faucet    FaucetConfig    `mapstructure:"faucet"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Workers         int           `mapstructure:"workers"`
}

// EthereumConfig covers on-chain access to the protocol contracts.
type EthereumConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	Network             string        `mapstructure:"network"`
	PriceFeedAddress    string        `mapstructure:"price_feed_address"`
	LEDTokenAddress     string        `mapstructure:"led_token_address"`
	StableTokenAddress  string        `mapstructure:"stable_token_address"`
	StabilityPoolAddr   string        `mapstructure:"stability_pool_address"`
	TroveManagerAddress string        `mapstructure:"trove_manager_address"`
	DeployerKey         string        `mapstructure:"deployer_key"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// FaucetConfig controls the one-time test token grant.
type FaucetConfig struct {
	Enabled      bool  `mapstructure:"enabled"`
	AmountTokens int64 `mapstructure:"amount_tokens"`
}

// DiscordConfig 描述 Discord 交互端点参数。
type DiscordConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	BotToken  string `mapstructure:"bot_token"`
	PublicKey string `mapstructure:"public_key"`
	APIBase   string `mapstructure:"api_base"`
}

// ServerConfig tunes the HTTP query API.
type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ledwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6c656477))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.workers", 4)

	v.SetDefault("ethereum.network", "sepolia")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("faucet.enabled", true)
	v.SetDefault("faucet.amount_tokens", int64(100_000))

	v.SetDefault("discord.enabled", false)
	v.SetDefault("discord.api_base", "https://discord.com/api/v10")

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be greater than zero")
	}
	if c.Ethereum.Network == "" {
		return fmt.Errorf("ethereum.network is required")
	}
	if c.Faucet.Enabled && c.Faucet.AmountTokens <= 0 {
		return fmt.Errorf("faucet.amount_tokens must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Discord.Enabled {
		if c.Discord.PublicKey == "" {
			return fmt.Errorf("discord.public_key 必须配置")
		}
		if c.Discord.AppID == "" {
			return fmt.Errorf("discord.app_id 必须配置")
		}
	}
	return nil
}
