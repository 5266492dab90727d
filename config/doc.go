// Package config loads the telemetrystream process configuration.
//
// Configuration is layered: built-in defaults, then each file passed to
// AddLayer, then TELEMETRY_* environment variables. Files may be JSON or YAML
// and only override the keys they set. Every file layer is checked against an
// embedded JSON Schema before it is merged, and the merged result is checked
// by Config.Validate.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/telemetry.yaml")
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//	mgr, err := connection.NewManager(dialer, cfg.Connection())
//
// Durations accept Go duration strings or integer milliseconds:
//
//	shaper:
//	  strategy: debounce
//	  interval: 300ms
//	reconnect:
//	  initial_delay: 1000
//
// # Environment Overrides
//
//	TELEMETRY_SOURCE_TYPE             websocket or nats
//	TELEMETRY_SOURCE_URL              transport URL
//	TELEMETRY_SOURCE_SUBJECT          NATS subject
//	TELEMETRY_SOURCE_COMMAND_SUBJECT  NATS subject for outbound messages
//	TELEMETRY_RECONNECT_MAX_ATTEMPTS  reconnect budget
//	TELEMETRY_SHAPER_STRATEGY         throttle, debounce, buffer or sample
//	TELEMETRY_SHAPER_INTERVAL         shaper interval
//	TELEMETRY_PING_INTERVAL           latency probe interval
//	TELEMETRY_SERVER_ADDR             HTTP listen address
//	TELEMETRY_SERVER_ALLOWED_ORIGINS  comma separated origins
//	TELEMETRY_LOG_LEVEL               debug, info, warn or error
//	TELEMETRY_LOG_FORMAT              json, text or console
//
// Files are read with size, depth and path traversal limits.
package config
