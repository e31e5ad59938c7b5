package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/notary"
	"invoice_integrity/internal/processor"
)

// EnvPrefix namespaces environment overrides, e.g. INVOICE_SERVER_ADDR.
const EnvPrefix = "INVOICE"

// ledgerEnv keeps the variable names existing deployments already set.
var ledgerEnv = map[string]string{
	"ledger.simulated":        "USE_SIMULATED_CHAIN",
	"ledger.rpc_url":          "WEB3_RPC_URL",
	"ledger.private_key":      "PRIVATE_KEY",
	"ledger.registry_address": "INVOICE_REGISTRY_ADDRESS",
}

// Load merges defaults, the optional YAML file and the environment, in that
// order of precedence from lowest to highest. Variables in envFile are added
// to the environment first without overriding ones already set; a missing
// envFile is not an error.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range ledgerEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := c.FraudRules(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if err := c.Notary().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Notifications.Workers < 1 {
		errs = append(errs, errors.New("notifications.workers must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) FraudRules() (processor.FraudConfig, error) {
	threshold, err := domain.ParseAmount(c.Fraud.Threshold)
	if err != nil {
		return processor.FraudConfig{}, fmt.Errorf("fraud.threshold: %w", err)
	}
	if threshold.Sign() < 0 {
		return processor.FraudConfig{}, errors.New("fraud.threshold must not be negative")
	}
	if c.Fraud.AverageMultiplier < 1 {
		return processor.FraudConfig{}, errors.New("fraud.average_multiplier must be at least 1")
	}
	if c.Fraud.ContactFanOutLimit < 0 {
		return processor.FraudConfig{}, errors.New("fraud.contact_fan_out_limit must not be negative")
	}

	return processor.FraudConfig{
		Threshold:          threshold,
		AverageMultiplier:  c.Fraud.AverageMultiplier,
		ContactFanOutLimit: c.Fraud.ContactFanOutLimit,
	}, nil
}

func (c *Config) Notary() notary.Config {
	return notary.Config{
		Simulated:       c.Ledger.Simulated,
		Endpoint:        c.Ledger.RPCURL,
		PrivateKey:      c.Ledger.PrivateKey,
		RegistryAddress: c.Ledger.RegistryAddress,
		Timeout:         c.Ledger.Timeout,
		PollInterval:    c.Ledger.PollInterval,
	}
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
