package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/pkg/timestamp"
)

// Decoder turns raw payloads into frames. The zero value is ready to use.
type Decoder struct {
	// Now supplies the receive time used when a payload carries no timestamp.
	Now func() time.Time
	// NewID supplies ids for events that arrive without one.
	NewID func() string
}

var defaultDecoder Decoder

// Decode decodes a payload with the default decoder.
func Decode(data []byte) (Frame, error) {
	return defaultDecoder.Decode(data)
}

// Decode classifies and decodes one payload:
//   - a non-empty "error" field makes it a fault
//   - a control "type" without a "value" makes it a control frame
//   - anything else must be a valid event
//
// Malformed payloads return an Invalid classified error wrapping
// errors.ErrInvalidData or errors.ErrOutOfRange. Payloads that are not JSON
// objects also wrap errors.ErrParsingFailed.
func (d Decoder) Decode(data []byte) (Frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, invalid(fmt.Errorf("%w: %w: %v", errors.ErrInvalidData, errors.ErrParsingFailed, err), "unmarshal payload")
	}
	if raw == nil {
		return Frame{}, invalid(fmt.Errorf("%w: payload is null", errors.ErrInvalidData), "unmarshal payload")
	}

	if msg := rawString(raw["error"]); msg != "" {
		return Frame{Kind: KindFault, Fault: d.fault(raw, msg)}, nil
	}

	typ := rawString(raw["type"])
	if _, hasValue := raw["value"]; isControlType(typ) && !hasValue {
		return Frame{Kind: KindControl, Control: Control{
			Type:      typ,
			Message:   rawString(raw["message"]),
			Timestamp: d.timestamp(raw["timestamp"]),
		}}, nil
	}

	ev, err := d.event(raw, typ)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindEvent, Event: ev}, nil
}

func (d Decoder) fault(raw map[string]json.RawMessage, msg string) Fault {
	code := rawString(raw["code"])
	if code == "" {
		code = CodeServerError
	}
	sev, ok := ParseSeverity(rawString(raw["severity"]))
	if !ok {
		sev = SeverityError
	}
	return Fault{
		Code:      code,
		Message:   msg,
		Severity:  sev,
		Timestamp: d.timestamp(raw["timestamp"]),
	}
}

func (d Decoder) event(raw map[string]json.RawMessage, typ string) (Event, error) {
	category := Category(typ)
	if !category.Valid() {
		return Event{}, invalid(fmt.Errorf("%w: category %q", errors.ErrInvalidData, typ), "validate category")
	}

	valueRaw, ok := raw["value"]
	if !ok {
		return Event{}, invalid(fmt.Errorf("%w: missing value", errors.ErrInvalidData), "validate value")
	}
	var value float64
	if err := json.Unmarshal(valueRaw, &value); err != nil {
		return Event{}, invalid(fmt.Errorf("%w: value: %v", errors.ErrInvalidData, err), "validate value")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < MinValue || value > MaxValue {
		return Event{}, invalid(fmt.Errorf("%w: value %v not in [%v,%v]", errors.ErrOutOfRange,
			value, MinValue, MaxValue), "validate value")
	}

	id := rawText(raw["id"])
	if id == "" {
		id = d.newID()
	}

	return Event{
		ID:        id,
		Category:  category,
		Value:     value,
		Timestamp: d.timestamp(raw["timestamp"]),
		Metadata:  metadata(raw["metadata"]),
	}, nil
}

func (d Decoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Decoder) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func (d Decoder) timestamp(raw json.RawMessage) time.Time {
	if t, ok := timestamp.ParseTime(decodeAny(raw)); ok {
		return t
	}
	return d.now()
}

func invalid(err error, action string) error {
	return errors.WrapInvalid(err, "message", "Decode", action)
}

// decodeAny decodes raw JSON keeping numbers as json.Number.
func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// rawString returns raw as a string if it is a JSON string, otherwise "".
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// rawText returns a JSON string's content or the literal text of a number.
func rawText(raw json.RawMessage) string {
	switch v := decodeAny(raw).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func metadata(raw json.RawMessage) map[string]string {
	obj, ok := decodeAny(raw).(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// Encode serializes an outbound payload. Byte slices and json.RawMessage are
// assumed to be encoded already and pass through unchanged.
func Encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "message", "Encode", "marshal payload")
	}
	return b, nil
}

// Ping builds an application-level ping frame.
func Ping(now time.Time) []byte {
	b, _ := json.Marshal(Control{Type: ControlPing, Timestamp: now.UTC()})
	return b
}
