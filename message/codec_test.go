package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/errors"
)

var receivedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testDecoder() Decoder {
	return Decoder{
		Now:   func() time.Time { return receivedAt },
		NewID: func() string { return "generated" },
	}
}

func TestDecode_Event(t *testing.T) {
	frame, err := testDecoder().Decode([]byte(`{
		"id": "cpu_1700000000000_abc",
		"type": "cpu",
		"value": 42.5,
		"timestamp": "2025-01-01T12:00:00.000Z",
		"metadata": {"source": "mock-server", "region": "us-east-1", "shard": 3, "hot": true, "nothing": null}
	}`))
	require.NoError(t, err)
	require.Equal(t, KindEvent, frame.Kind)

	ev := frame.Event
	assert.Equal(t, "cpu_1700000000000_abc", ev.ID)
	assert.Equal(t, CategoryCPU, ev.Category)
	assert.Equal(t, 42.5, ev.Value)
	assert.True(t, ev.Timestamp.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, map[string]string{
		"source": "mock-server",
		"region": "us-east-1",
		"shard":  "3",
		"hot":    "true",
	}, ev.Metadata)
}

func TestDecode_EventDefaults(t *testing.T) {
	frame, err := testDecoder().Decode([]byte(`{"type":"gpu_temp","value":0}`))
	require.NoError(t, err)
	require.Equal(t, KindEvent, frame.Kind)

	assert.Equal(t, "generated", frame.Event.ID)
	assert.Equal(t, Category("gpu_temp"), frame.Event.Category)
	assert.Equal(t, receivedAt, frame.Event.Timestamp)
	assert.Nil(t, frame.Event.Metadata)
}

func TestDecode_EventNumericTimestampAndID(t *testing.T) {
	frame, err := testDecoder().Decode([]byte(`{"id":17,"type":"disk","value":100,"timestamp":1735732800000}`))
	require.NoError(t, err)

	assert.Equal(t, "17", frame.Event.ID)
	assert.Equal(t, 100.0, frame.Event.Value)
	assert.Equal(t, int64(1735732800000), frame.Event.Timestamp.UnixMilli())
}

func TestDecode_UnparseableTimestampFallsBack(t *testing.T) {
	frame, err := testDecoder().Decode([]byte(`{"type":"memory","value":60,"timestamp":"soon"}`))
	require.NoError(t, err)
	assert.Equal(t, receivedAt, frame.Event.Timestamp)
}

func TestDecode_Fault(t *testing.T) {
	frame, err := testDecoder().Decode([]byte(
		`{"error":"Rate limit exceeded","code":"RATE_LIMIT","severity":"critical","timestamp":"2025-01-01T12:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, KindFault, frame.Kind)

	assert.Equal(t, CodeRateLimit, frame.Fault.Code)
	assert.Equal(t, "Rate limit exceeded", frame.Fault.Message)
	assert.Equal(t, SeverityCritical, frame.Fault.Severity)
	assert.Equal(t, int64(1735732800000), frame.Fault.Timestamp.UnixMilli())
}

func TestDecode_FaultDefaults(t *testing.T) {
	frame, err := testDecoder().Decode([]byte(`{"error":"boom","severity":"apocalyptic"}`))
	require.NoError(t, err)
	require.Equal(t, KindFault, frame.Kind)

	assert.Equal(t, CodeServerError, frame.Fault.Code)
	assert.Equal(t, SeverityError, frame.Fault.Severity)
	assert.Equal(t, receivedAt, frame.Fault.Timestamp)
}

func TestDecode_Control(t *testing.T) {
	tests := []struct {
		payload string
		typ     string
	}{
		{`{"type":"connected","message":"Connected to metrics stream","clientId":1}`, ControlConnected},
		{`{"type":"pong","timestamp":"2025-01-01T12:00:00Z"}`, ControlPong},
		{`{"type":"ping"}`, ControlPing},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			frame, err := testDecoder().Decode([]byte(tt.payload))
			require.NoError(t, err)
			require.Equal(t, KindControl, frame.Kind)
			assert.Equal(t, tt.typ, frame.Control.Type)
		})
	}

	frame, err := testDecoder().Decode([]byte(`{"type":"connected","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", frame.Control.Message)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		sentinel error
	}{
		{"not json", `not json`, errors.ErrInvalidData},
		{"not json parse failure", `not json`, errors.ErrParsingFailed},
		{"array parse failure", `[1,2,3]`, errors.ErrParsingFailed},
		{"array", `[1,2,3]`, errors.ErrInvalidData},
		{"null", `null`, errors.ErrInvalidData},
		{"empty object", `{}`, errors.ErrInvalidData},
		{"missing value", `{"type":"cpu"}`, errors.ErrInvalidData},
		{"string value", `{"type":"cpu","value":"50"}`, errors.ErrInvalidData},
		{"uppercase category", `{"type":"CPU","value":50}`, errors.ErrInvalidData},
		{"numeric category", `{"type":5,"value":50}`, errors.ErrInvalidData},
		{"above range", `{"type":"cpu","value":100.01}`, errors.ErrOutOfRange},
		{"below range", `{"type":"cpu","value":-1}`, errors.ErrOutOfRange},
		{"control with value", `{"type":"pong","value":5000}`, errors.ErrOutOfRange},
		{"empty error is not a fault", `{"error":"","type":"cpu"}`, errors.ErrInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testDecoder().Decode([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), "message.Decode")
		})
	}
}

func TestDecode_DefaultDecoder(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"network","value":12.5}`))
	require.NoError(t, err)
	assert.Len(t, frame.Event.ID, 36, "uuid expected")
	assert.WithinDuration(t, time.Now(), frame.Event.Timestamp, time.Minute)
}

func TestCategory_Valid(t *testing.T) {
	assert.True(t, CategoryCPU.Valid())
	assert.True(t, Category("net-io_2").Valid())
	assert.False(t, Category("").Valid())
	assert.False(t, Category("2cpu").Valid())
	assert.False(t, Category("Cpu").Valid())
}

func TestParseSeverity(t *testing.T) {
	for _, s := range []string{"info", "warning", "error", "critical"} {
		sev, ok := ParseSeverity(s)
		assert.True(t, ok)
		assert.Equal(t, Severity(s), sev)
	}
	_, ok := ParseSeverity("fatal")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	b, err := Encode(map[string]any{"type": "subscribe", "topics": []string{"cpu"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","topics":["cpu"]}`, string(b))

	raw := json.RawMessage(`{"already":"encoded"}`)
	b, err = Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), b)

	_, err = Encode(make(chan int))
	assert.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestPing(t *testing.T) {
	b := Ping(receivedAt)

	frame, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, KindControl, frame.Kind)
	assert.Equal(t, ControlPing, frame.Control.Type)
	assert.True(t, frame.Control.Timestamp.Equal(receivedAt))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "event", KindEvent.String())
	assert.Equal(t, "fault", KindFault.String())
	assert.Equal(t, "control", KindControl.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func BenchmarkDecode(b *testing.B) {
	payload := []byte(`{"id":"x","type":"cpu","value":42.5,"timestamp":"2025-01-01T12:00:00Z","metadata":{"region":"eu"}}`)
	for i := 0; i < b.N; i++ {
		_, _ = Decode(payload)
	}
}
