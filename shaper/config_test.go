package shaper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"minimum interval", Config{Strategy: StrategySample, Interval: MinInterval}, false},
		{"buffer with size", Config{Strategy: StrategyBuffer, Interval: time.Second, BufferSize: 50}, false},
		{"unknown strategy", Config{Strategy: "burst", Interval: time.Second}, true},
		{"empty strategy", Config{Interval: time.Second}, true},
		{"interval too small", Config{Strategy: StrategyThrottle, Interval: 99 * time.Millisecond}, true},
		{"negative buffer size", Config{Strategy: StrategyBuffer, Interval: time.Second, BufferSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestConfig_ApplyIsAllOrNothing(t *testing.T) {
	base := DefaultConfig()

	patch := WithStrategy(StrategyBuffer)
	bad := 10 * time.Millisecond
	patch.Interval = &bad

	got, err := base.Apply(patch)
	require.Error(t, err)
	assert.Equal(t, base, got, "strategy must not change when the interval is rejected")

	got, err = base.Apply(WithStrategy(StrategyDebounce))
	require.NoError(t, err)
	assert.Equal(t, StrategyDebounce, got.Strategy)
	assert.Equal(t, base.Interval, got.Interval)

	got, err = got.Apply(WithBufferSize(8))
	require.NoError(t, err)
	assert.Equal(t, 8, got.BufferSize)

	got, err = got.Apply(Patch{})
	require.NoError(t, err)
	assert.Equal(t, StrategyDebounce, got.Strategy)
}

func TestPatch_UnmarshalJSON(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"strategy":"buffer","intervalMs":500}`), &p))

	require.NotNil(t, p.Strategy)
	assert.Equal(t, StrategyBuffer, *p.Strategy)
	require.NotNil(t, p.Interval)
	assert.Equal(t, 500*time.Millisecond, *p.Interval)
	assert.Nil(t, p.BufferSize)
	assert.False(t, p.IsEmpty())

	var empty Patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"intervalMs":"fast"}`), &p))
}

func TestConfig_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Config{Strategy: StrategySample, Interval: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.JSONEq(t, `{"strategy":"sample","intervalMs":1500}`, string(data))

	var back Config
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Config{Strategy: StrategySample, Interval: 1500 * time.Millisecond}, back)
}

func TestPatch_Validate(t *testing.T) {
	assert.NoError(t, Patch{}.Validate())
	assert.NoError(t, WithInterval(MinInterval).Validate())
	assert.Error(t, WithStrategy("fast").Validate())
	assert.Error(t, WithInterval(time.Millisecond).Validate())
	assert.Error(t, WithBufferSize(-3).Validate())
}
