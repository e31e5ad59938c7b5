package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			MetricsAddr:    ":9090",
			RequestTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "invoices.db",
		},
		Fraud: FraudConfig{
			Threshold:          "100000",
			AverageMultiplier:  5,
			ContactFanOutLimit: 5,
		},
		Ledger: LedgerConfig{
			Simulated:    true,
			Timeout:      30 * time.Second,
			PollInterval: 2 * time.Second,
		},
		Notifications: NotificationConfig{
			Workers:       3,
			SlackChannel:  "#fraud-alerts",
			SecurityEmail: "security@example.com",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.signing_secret", d.Server.SigningSecret)

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("fraud.threshold", d.Fraud.Threshold)
	v.SetDefault("fraud.average_multiplier", d.Fraud.AverageMultiplier)
	v.SetDefault("fraud.contact_fan_out_limit", d.Fraud.ContactFanOutLimit)

	v.SetDefault("ledger.simulated", d.Ledger.Simulated)
	v.SetDefault("ledger.rpc_url", d.Ledger.RPCURL)
	v.SetDefault("ledger.private_key", d.Ledger.PrivateKey)
	v.SetDefault("ledger.registry_address", d.Ledger.RegistryAddress)
	v.SetDefault("ledger.timeout", d.Ledger.Timeout)
	v.SetDefault("ledger.poll_interval", d.Ledger.PollInterval)

	v.SetDefault("notifications.workers", d.Notifications.Workers)
	v.SetDefault("notifications.slack_channel", d.Notifications.SlackChannel)
	v.SetDefault("notifications.security_email", d.Notifications.SecurityEmail)
}
