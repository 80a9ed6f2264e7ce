// Package config loads ledgerd settings from defaults, an optional config
// file, an optional .env file and LEDGER_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bank_ledger/internal/policy"
	"bank_ledger/pkg/idgen"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "LEDGER"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Log          LogConfig          `mapstructure:"log"`
	IDs          IDConfig           `mapstructure:"ids"`
	Policy       PolicyConfig       `mapstructure:"policy"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Statement    StatementConfig    `mapstructure:"statement"`
	Notification NotificationConfig `mapstructure:"notification"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type IDConfig struct {
	Strategy          string `mapstructure:"strategy"`
	AccountPrefix     string `mapstructure:"account_prefix"`
	TransactionPrefix string `mapstructure:"transaction_prefix"`
}

// PolicyConfig keeps money values as strings so they reach decimal parsing
// without passing through float64.
type PolicyConfig struct {
	Checking struct {
		FreeTransactions int    `mapstructure:"free_transactions"`
		FeePerExtra      string `mapstructure:"fee_per_extra"`
	} `mapstructure:"checking"`
	Savings struct {
		InterestRate    string `mapstructure:"interest_rate"`
		MinimumBalance  string `mapstructure:"minimum_balance"`
		WithdrawalLimit int    `mapstructure:"withdrawal_limit"`
	} `mapstructure:"savings"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type StatementConfig struct {
	Secret string `mapstructure:"secret"`
}

type NotificationConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Workers   int  `mapstructure:"workers"`
	QueueSize int  `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")

	v.SetDefault("ids.strategy", string(idgen.StrategySequential))
	v.SetDefault("ids.account_prefix", "ACC")
	v.SetDefault("ids.transaction_prefix", "TXN")

	v.SetDefault("policy.checking.free_transactions", 10)
	v.SetDefault("policy.checking.fee_per_extra", "2.50")
	v.SetDefault("policy.savings.interest_rate", "0.02")
	v.SetDefault("policy.savings.minimum_balance", "100.00")
	v.SetDefault("policy.savings.withdrawal_limit", 5)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", 720*time.Hour)

	v.SetDefault("statement.secret", "")

	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.workers", 2)
	v.SetDefault("notification.queue_size", 1000)
}

// Load reads the configuration. configFile may be empty; envFile may be
// empty, in which case a .env in the working directory is used if present.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := idgen.New(idgen.Strategy(c.IDs.Strategy), c.IDs.AccountPrefix, c.IDs.TransactionPrefix); err != nil {
		return fmt.Errorf("ids.strategy: %w", err)
	}
	if _, err := c.PolicySettings(); err != nil {
		return err
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive: %s", c.Scheduler.Interval)
	}
	return nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func (c *Config) PolicySettings() (policy.Settings, error) {
	fee, err := decimal.NewFromString(c.Policy.Checking.FeePerExtra)
	if err != nil {
		return policy.Settings{}, fmt.Errorf("policy.checking.fee_per_extra: %w", err)
	}
	rate, err := decimal.NewFromString(c.Policy.Savings.InterestRate)
	if err != nil {
		return policy.Settings{}, fmt.Errorf("policy.savings.interest_rate: %w", err)
	}
	minimum, err := decimal.NewFromString(c.Policy.Savings.MinimumBalance)
	if err != nil {
		return policy.Settings{}, fmt.Errorf("policy.savings.minimum_balance: %w", err)
	}

	settings := policy.Settings{
		CheckingFreeTransactions: c.Policy.Checking.FreeTransactions,
		CheckingFeePerExtra:      fee,
		SavingsInterestRate:      rate,
		SavingsMinimumBalance:    minimum,
		SavingsWithdrawalLimit:   c.Policy.Savings.WithdrawalLimit,
	}
	if err := settings.Validate(); err != nil {
		return policy.Settings{}, fmt.Errorf("policy: %w", err)
	}
	return settings, nil
}

func (c *Config) IDGenerator() (idgen.Generator, error) {
	return idgen.New(idgen.Strategy(c.IDs.Strategy), c.IDs.AccountPrefix, c.IDs.TransactionPrefix)
}
