package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Wallet WalletConfig
	Poll   PollConfig
	Redis  RedisConfig
	Server ServerConfig
}

type WalletConfig struct {
	PrivateKey       string        `mapstructure:"private_key"`
	DefaultRecipient string        `mapstructure:"default_recipient"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
}

type PollConfig struct {
	BalanceInterval time.Duration `mapstructure:"balance_interval"`
	GasInterval     time.Duration `mapstructure:"gas_interval"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	Version string `mapstructure:"version"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults: balance polls fast, gas price slow.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.version", "dirty")
	v.SetDefault("poll.balance_interval", time.Second)
	v.SetDefault("poll.gas_interval", 10*time.Second)
	v.SetDefault("poll.query_timeout", 5*time.Second)
	v.SetDefault("poll.stale_after", 30*time.Second)
	// 0 = wait for inclusion indefinitely.
	v.SetDefault("wallet.confirm_timeout", time.Duration(0))

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"wallet.private_key":       "PRIVATE_KEY",
		"wallet.default_recipient": "DEFAULT_RECIPIENT",
		"wallet.confirm_timeout":   "CONFIRM_TIMEOUT",
		"poll.balance_interval":    "BALANCE_POLL_INTERVAL",
		"poll.gas_interval":        "GAS_POLL_INTERVAL",
		"poll.query_timeout":       "QUERY_TIMEOUT",
		"poll.stale_after":         "STALE_AFTER",
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"server.port":              "PORT",
		"server.version":           "VERSION",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("required config missing: PRIVATE_KEY")
	}
	if c.Poll.BalanceInterval <= 0 || c.Poll.GasInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Poll.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	return nil
}

// DisplayVersion is the build identifier shown in /api/status: the first 8
// characters of the version string plus today's date.
func (c *Config) DisplayVersion() string {
	ver := c.Server.Version
	if len(ver) > 8 {
		ver = ver[:8]
	}
	return fmt.Sprintf("%s, %s", ver, time.Now().Format("2006-01-02"))
}
