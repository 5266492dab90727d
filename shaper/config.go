package shaper

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/telemetrystream/errors"
)

// Strategy selects how the shaper paces a bursty event stream.
type Strategy string

const (
	// StrategyThrottle emits an event only if nothing was emitted within the last interval.
	StrategyThrottle Strategy = "throttle"
	// StrategyDebounce emits the latest event after an interval of silence.
	StrategyDebounce Strategy = "debounce"
	// StrategyBuffer emits every event of a fixed window as one batch.
	StrategyBuffer Strategy = "buffer"
	// StrategySample emits the latest event on a fixed clock.
	StrategySample Strategy = "sample"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyThrottle, StrategyDebounce, StrategyBuffer, StrategySample}

// Valid reports whether s is a supported strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyThrottle, StrategyDebounce, StrategyBuffer, StrategySample:
		return true
	default:
		return false
	}
}

// MinInterval is the smallest accepted scheduling interval.
const MinInterval = 100 * time.Millisecond

// Config parameterizes the shaper.
type Config struct {
	Strategy Strategy
	Interval time.Duration
	// BufferSize caps a buffer batch; a full batch is emitted before its window ends.
	// Zero means unbounded. Ignored by the other strategies.
	BufferSize int
}

// DefaultConfig returns a 1s throttle.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyThrottle,
		Interval: time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.Strategy.Valid() {
		return invalidConfig(fmt.Errorf("unknown strategy %q", c.Strategy))
	}
	if c.Interval < MinInterval {
		return invalidConfig(fmt.Errorf("interval %v below minimum %v", c.Interval, MinInterval))
	}
	if c.BufferSize < 0 {
		return invalidConfig(fmt.Errorf("buffer size %d is negative", c.BufferSize))
	}
	return nil
}

func invalidConfig(cause error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, cause), "shaper", "Validate", "validate config")
}

// Apply merges p over c. The result is validated as a whole; on error c is
// returned unchanged so no partial update is ever observable.
func (c Config) Apply(p Patch) (Config, error) {
	merged := c
	if p.Strategy != nil {
		merged.Strategy = *p.Strategy
	}
	if p.Interval != nil {
		merged.Interval = *p.Interval
	}
	if p.BufferSize != nil {
		merged.BufferSize = *p.BufferSize
	}
	if err := merged.Validate(); err != nil {
		return c, err
	}
	return merged, nil
}

type wireConfig struct {
	Strategy   Strategy `json:"strategy"`
	IntervalMs int64    `json:"intervalMs"`
	BufferSize int      `json:"bufferSize,omitempty"`
}

// MarshalJSON encodes the interval as integer milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireConfig{
		Strategy:   c.Strategy,
		IntervalMs: c.Interval.Milliseconds(),
		BufferSize: c.BufferSize,
	})
}

// UnmarshalJSON decodes the MarshalJSON form.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(err, "shaper", "UnmarshalJSON", "decode config")
	}
	*c = Config{
		Strategy:   w.Strategy,
		Interval:   time.Duration(w.IntervalMs) * time.Millisecond,
		BufferSize: w.BufferSize,
	}
	return nil
}

// Patch is a partial Config update. Nil fields are left unchanged.
type Patch struct {
	Strategy   *Strategy
	Interval   *time.Duration
	BufferSize *int
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Strategy == nil && p.Interval == nil && p.BufferSize == nil
}

// Validate checks the fields the patch sets. A patch can still be rejected by
// Config.Apply when the merged result is invalid.
func (p Patch) Validate() error {
	if p.Strategy != nil && !p.Strategy.Valid() {
		return invalidConfig(fmt.Errorf("unknown strategy %q", *p.Strategy))
	}
	if p.Interval != nil && *p.Interval < MinInterval {
		return invalidConfig(fmt.Errorf("interval %v below minimum %v", *p.Interval, MinInterval))
	}
	if p.BufferSize != nil && *p.BufferSize < 0 {
		return invalidConfig(fmt.Errorf("buffer size %d is negative", *p.BufferSize))
	}
	return nil
}

// UnmarshalJSON accepts {"strategy":"buffer","intervalMs":500,"bufferSize":20}.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var wire struct {
		Strategy   *Strategy `json:"strategy"`
		IntervalMs *int64    `json:"intervalMs"`
		BufferSize *int      `json:"bufferSize"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.WrapInvalid(err, "shaper", "UnmarshalJSON", "decode patch")
	}

	*p = Patch{Strategy: wire.Strategy, BufferSize: wire.BufferSize}
	if wire.IntervalMs != nil {
		d := time.Duration(*wire.IntervalMs) * time.Millisecond
		p.Interval = &d
	}
	return nil
}

// WithStrategy returns a patch setting only the strategy.
func WithStrategy(s Strategy) Patch {
	return Patch{Strategy: &s}
}

// WithInterval returns a patch setting only the interval.
func WithInterval(d time.Duration) Patch {
	return Patch{Interval: &d}
}

// WithBufferSize returns a patch setting only the buffer size.
func WithBufferSize(n int) Patch {
	return Patch{BufferSize: &n}
}
