// Package config loads the paytrace configuration from a yaml file and the
// environment. A config.yaml in the config path wins over config.example.yaml,
// and any key can be overridden through the PAYTRACE_ env prefix
// (PAYTRACE_RPC_HOST, PAYTRACE_REPORT_PATH, ...).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env     string  `mapstructure:"env"`
	RPC     RPC     `mapstructure:"rpc"`
	Wallets Wallets `mapstructure:"wallets"`
	Payment Payment `mapstructure:"payment"`
	Node    Node    `mapstructure:"node"`
	Report  Report  `mapstructure:"report"`
}

// RPC describes how to reach the node's JSON-RPC interface.
type RPC struct {
	Host string `mapstructure:"host"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

// Wallets names the two wallets driven by the payment lifecycle.
type Wallets struct {
	Miner  string `mapstructure:"miner"`
	Trader string `mapstructure:"trader"`
}

// Payment holds the tunables of the lifecycle itself.
type Payment struct {
	AmountBTC       float64       `mapstructure:"amount_btc"`
	MaturityBlocks  int64         `mapstructure:"maturity_blocks"`
	PropagationWait time.Duration `mapstructure:"propagation_wait"`
}

// Node controls the optional managed regtest bitcoind. When Manage is false
// the tool attaches to an already-running node and never touches the process.
type Node struct {
	Manage    bool     `mapstructure:"manage"`
	Script    string   `mapstructure:"script"`
	DataDir   string   `mapstructure:"datadir"`
	ExtraArgs []string `mapstructure:"extra_args"`
}

type Report struct {
	Path string `mapstructure:"path"`
}

// Load reads the configuration from the given directory, falling back to
// config.example.yaml when config.yaml is absent.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PAYTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		v.SetConfigName("config.example")
		if err := v.ReadInConfig(); err != nil {
			// No file at all is fine, defaults and env still apply.
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("rpc.host", "127.0.0.1:18443")
	v.SetDefault("rpc.user", "user")
	v.SetDefault("rpc.pass", "pass")

	v.SetDefault("wallets.miner", "Miner")
	v.SetDefault("wallets.trader", "Trader")

	v.SetDefault("payment.amount_btc", 20.0)
	v.SetDefault("payment.maturity_blocks", 101)
	v.SetDefault("payment.propagation_wait", "500ms")

	v.SetDefault("node.manage", false)
	v.SetDefault("node.script", "")
	v.SetDefault("node.datadir", "./bitcoind_regtest")
	v.SetDefault("node.extra_args", []string{})

	v.SetDefault("report.path", "out.txt")
}
