package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/telemetrystream/errors"
)

// DefaultEnvPrefix prefixes environment overrides, e.g. TELEMETRY_SOURCE_URL.
const DefaultEnvPrefix = "TELEMETRY"

//go:embed schema.json
var schemaJSON []byte

// Schema returns the JSON Schema that configuration files are checked against.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

// Loader builds a Config from defaults, file layers and environment
// overrides, in that order. Each layer only overrides the keys it sets.
type Loader struct {
	layers     []string
	envPrefix  string
	validation bool
	schema     *gojsonschema.Schema
}

// NewLoader creates a loader with validation enabled
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validation: true,
	}
}

// AddLayer adds a JSON or YAML file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// SetEnvPrefix changes the environment override prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// EnableValidation toggles the final semantic Validate call. Schema checks
// of file layers always run.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads defaults, the single file at path and environment overrides
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges every layer over the defaults
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadLayer(path)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Loader", "Load", "decode config")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadLayer reads one file into a generic document and checks it against the schema.
func (l *Loader) loadLayer(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrConfigNotFound, err),
			"Loader", "loadLayer", fmt.Sprintf("read %s", path))
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		if err = validateJSONDepth(data); err == nil {
			err = json.Unmarshal(data, &raw)
		}
	}
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "loadLayer", fmt.Sprintf("parse %s", path))
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if err := l.validateSchema(raw); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadLayer", fmt.Sprintf("validate %s", path))
	}
	return raw, nil
}

func (l *Loader) validateSchema(doc map[string]any) error {
	if l.schema == nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
		if err != nil {
			return errors.WrapFatal(err, "Loader", "validateSchema", "compile schema")
		}
		l.schema = schema
	}

	result, err := l.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(msgs, "; "))
}

// applyEnvOverrides applies PREFIX_* variables over the loaded config
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) error {
		key := l.envPrefix + "_" + name
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			return nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		*dst = val
		return nil
	}
	dur := func(name string, dst *Duration) error {
		var s string
		if err := str(name, &s); err != nil || s == "" {
			return err
		}
		return dst.UnmarshalJSON(quoteIfDuration(s))
	}
	integer := func(name string, dst *int) error {
		var s string
		if err := str(name, &s); err != nil || s == "" {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%w: %s_%s=%q", errors.ErrInvalidConfig, l.envPrefix, name, s)
		}
		*dst = n
		return nil
	}

	var origins string
	steps := []error{
		str("SOURCE_TYPE", &cfg.Source.Type),
		str("SOURCE_URL", &cfg.Source.URL),
		str("SOURCE_SUBJECT", &cfg.Source.Subject),
		str("SOURCE_COMMAND_SUBJECT", &cfg.Source.CommandSubject),
		integer("RECONNECT_MAX_ATTEMPTS", &cfg.Reconnect.MaxAttempts),
		str("SHAPER_STRATEGY", &cfg.Shaper.Strategy),
		dur("SHAPER_INTERVAL", &cfg.Shaper.Interval),
		dur("PING_INTERVAL", &cfg.Ping.Interval),
		str("SERVER_ADDR", &cfg.Server.Addr),
		str("SERVER_ALLOWED_ORIGINS", &origins),
		str("LOG_LEVEL", &cfg.Log.Level),
		str("LOG_FORMAT", &cfg.Log.Format),
	}
	for _, err := range steps {
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "apply environment")
		}
	}
	if origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	return nil
}

// quoteIfDuration turns "1s" into a JSON string and leaves bare numbers as milliseconds.
func quoteIfDuration(s string) []byte {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return []byte(s)
	}
	return []byte(strconv.Quote(s))
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(data, &m)
}

// deepMerge returns base with override applied; nested objects merge key by key.
func deepMerge(base, override map[string]any) map[string]any {
	result := maps.Clone(base)
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}
