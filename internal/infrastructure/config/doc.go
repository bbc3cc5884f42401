// Package config loads and validates Shadow Core configuration.
//
// Configuration is read from a YAML file, layered on top of hardcoded
// defaults, then overridden by environment variables for deployment-time
// secrets (broker credentials, InfluxDB token).
//
// # Structure
//
//	service:    instance identity
//	database:   SQLite settings (thing registry)
//	mqtt:       broker, auth, QoS, reconnect backoff
//	shadow:     engine timeouts and buffer sizes
//	api:        HTTP server
//	websocket:  live state feed settings
//	influxdb:   state history sink
//	logging:    level, format, output
//	things:     shadow-backed device identities to synchronize
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.UpdateTimeout()
package config
