// Package config loads busmux configuration.
//
// Configuration is layered with spf13/viper. Built-in defaults come first,
// then each file layer in order (JSON, YAML or TOML, chosen by extension),
// then environment variables. Environment keys are the upper-cased key path
// joined with underscores and prefixed with BUSMUX:
//
//	BUSMUX_BROKER_HOST=broker.local
//	BUSMUX_BROKER_TRANSPORT=nats
//	BUSMUX_BROKER_TLS_ENABLED=true
//	BUSMUX_SUBSCRIBE=sensors/#,alerts/+
//
// # Basic Usage
//
//	cfg, err := config.Load("busmux.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	manager, err := pubsub.NewManager(cfg.Broker.TransportConfig(), dialer)
//
// Layering multiple files:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Validation errors are classified invalid and wrap errors.ErrInvalidConfig.
// Use Redacted before printing a configuration.
package config
