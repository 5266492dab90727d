package stream

import (
	"sort"
	"time"

	"github.com/c360/telemetrystream/aggregate"
	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/shaper"
)

// MaxErrors bounds the error log; the oldest record is evicted first.
const MaxErrors = 10

// ErrorRecord is one entry of the user-visible error log.
type ErrorRecord struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Severity  message.Severity  `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Retryable bool              `json:"retryable"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ApplicationState is an immutable snapshot of the pipeline. Every change
// produces a new value; unchanged maps and slices are shared between
// snapshots and must not be modified.
type ApplicationState struct {
	Aggregates map[message.Category]aggregate.Aggregate `json:"aggregates"`
	RawWindow  map[message.Category][]float64           `json:"rawWindow"`
	Connection connection.State                         `json:"connection"`
	Shaper     shaper.Config                            `json:"config"`
	Paused     bool                                     `json:"paused"`
	Errors     []ErrorRecord                            `json:"errors"`
	LastUpdate time.Time                                `json:"lastUpdate,omitzero"`
	Version    uint64                                   `json:"version"`
}

// InitialState returns the state before any data arrives.
func InitialState(cfg shaper.Config) ApplicationState {
	return ApplicationState{
		Aggregates: map[message.Category]aggregate.Aggregate{},
		RawWindow:  map[message.Category][]float64{},
		Connection: connection.State{Status: connection.StatusDisconnected},
		Shaper:     cfg,
		Errors:     []ErrorRecord{},
	}
}

// IsConnected reports whether the connection is up.
func (s ApplicationState) IsConnected() bool {
	return s.Connection.Connected()
}

// HasErrors reports whether the error log is non-empty.
func (s ApplicationState) HasErrors() bool {
	return len(s.Errors) > 0
}

// LatestError returns the most recent error record.
func (s ApplicationState) LatestError() (ErrorRecord, bool) {
	if len(s.Errors) == 0 {
		return ErrorRecord{}, false
	}
	return s.Errors[len(s.Errors)-1], true
}

// Aggregate returns the aggregate for category.
func (s ApplicationState) Aggregate(category message.Category) (aggregate.Aggregate, bool) {
	a, ok := s.Aggregates[category]
	return a, ok
}

// AggregateList returns every aggregate ordered by category.
func (s ApplicationState) AggregateList() []aggregate.Aggregate {
	out := make([]aggregate.Aggregate, 0, len(s.Aggregates))
	for _, a := range s.Aggregates {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
