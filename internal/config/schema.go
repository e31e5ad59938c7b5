package config

import "time"

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig       `yaml:"server" mapstructure:"server"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
	Storage       StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Fraud         FraudConfig        `yaml:"fraud" mapstructure:"fraud"`
	Ledger        LedgerConfig       `yaml:"ledger" mapstructure:"ledger"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	MetricsAddr    string        `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// SigningSecret makes X-Signature mandatory on submissions when set.
	SigningSecret string `yaml:"signing_secret" mapstructure:"signing_secret"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

type FraudConfig struct {
	// Threshold is a decimal string so large totals keep full precision.
	Threshold          string `yaml:"threshold" mapstructure:"threshold"`
	AverageMultiplier  int64  `yaml:"average_multiplier" mapstructure:"average_multiplier"`
	ContactFanOutLimit int    `yaml:"contact_fan_out_limit" mapstructure:"contact_fan_out_limit"`
}

type LedgerConfig struct {
	Simulated       bool          `yaml:"simulated" mapstructure:"simulated"`
	RPCURL          string        `yaml:"rpc_url" mapstructure:"rpc_url"`
	PrivateKey      string        `yaml:"private_key" mapstructure:"private_key"`
	RegistryAddress string        `yaml:"registry_address" mapstructure:"registry_address"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

type NotificationConfig struct {
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	SlackChannel  string `yaml:"slack_channel" mapstructure:"slack_channel"`
	SecurityEmail string `yaml:"security_email" mapstructure:"security_email"`
}
