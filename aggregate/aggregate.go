// Package aggregate folds telemetry values into bounded per-category rolling statistics.
//
// Fold is a pure function: it never mutates its inputs and always returns a freshly
// allocated window, so callers can share previously returned windows and aggregates
// across immutable snapshots without copying.
package aggregate

import (
	"math"
	"sort"

	"github.com/c360/telemetrystream/message"
)

const (
	// WindowSize is the number of most recent raw values retained per category.
	WindowSize = 50
	// HistorySize is the number of most recent values exposed for sparklines.
	HistorySize = 20
	// trendThreshold is the fraction of the previous average a change must exceed.
	trendThreshold = 0.1
)

// Trend is the direction of the latest value relative to the previous aggregate.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Aggregate summarizes a category's rolling window.
type Aggregate struct {
	Category message.Category `json:"category"`
	Current  float64          `json:"current"`
	Avg      float64          `json:"avg"`
	Max      float64          `json:"max"`
	Min      float64          `json:"min"`
	Trend    Trend            `json:"trend"`
	History  []float64        `json:"history"`
	Samples  int              `json:"samples"`
}

// Fold appends value to window and recomputes the aggregate. prev is the previous
// aggregate for the category, or nil for the first observation.
//
// avg, min and max cover the whole retained window and are rounded to two decimals.
// The trend compares value against prev.Current with a threshold of 10% of
// prev.Avg using strict inequalities, so a change exactly at the threshold is stable.
func Fold(window []float64, prev *Aggregate, category message.Category, value float64) (Aggregate, []float64) {
	keep := min(len(window), WindowSize-1)
	next := make([]float64, 0, keep+1)
	next = append(next, window[len(window)-keep:]...)
	next = append(next, value)

	sum, lo, hi := 0.0, next[0], next[0]
	for _, v := range next {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	trend := TrendStable
	if prev != nil {
		delta := value - prev.Current
		threshold := trendThreshold * prev.Avg
		switch {
		case delta > threshold:
			trend = TrendUp
		case delta < -threshold:
			trend = TrendDown
		}
	}

	histStart := max(0, len(next)-HistorySize)

	return Aggregate{
		Category: category,
		Current:  value,
		Avg:      round2(sum / float64(len(next))),
		Max:      round2(hi),
		Min:      round2(lo),
		Trend:    trend,
		History:  next[histStart:len(next):len(next)],
		Samples:  len(next),
	}, next
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Aggregator owns the rolling window of every category. It is not safe for
// concurrent use; the stream coordinator is its single writer.
type Aggregator struct {
	windows    map[message.Category][]float64
	aggregates map[message.Category]Aggregate
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		windows:    make(map[message.Category][]float64),
		aggregates: make(map[message.Category]Aggregate),
	}
}

// Update folds value into the category's window and returns the new aggregate.
func (a *Aggregator) Update(category message.Category, value float64) Aggregate {
	var prev *Aggregate
	if p, ok := a.aggregates[category]; ok {
		prev = &p
	}

	agg, window := Fold(a.windows[category], prev, category, value)
	a.windows[category] = window
	a.aggregates[category] = agg
	return agg
}

// Window returns a copy of the category's retained values, oldest first.
func (a *Aggregator) Window(category message.Category) []float64 {
	w := a.windows[category]
	if w == nil {
		return nil
	}
	out := make([]float64, len(w))
	copy(out, w)
	return out
}

// Windows returns a new map of every category's window. The slices are shared
// with the aggregator but are never mutated after Fold returns them.
func (a *Aggregator) Windows() map[message.Category][]float64 {
	out := make(map[message.Category][]float64, len(a.windows))
	for k, v := range a.windows {
		out[k] = v
	}
	return out
}

// Aggregates returns a new map of every category's latest aggregate.
func (a *Aggregator) Aggregates() map[message.Category]Aggregate {
	out := make(map[message.Category]Aggregate, len(a.aggregates))
	for k, v := range a.aggregates {
		out[k] = v
	}
	return out
}

// Categories returns the observed categories in sorted order.
func (a *Aggregator) Categories() []message.Category {
	out := make([]message.Category, 0, len(a.aggregates))
	for k := range a.aggregates {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset forgets every window and aggregate.
func (a *Aggregator) Reset() {
	a.windows = make(map[message.Category][]float64)
	a.aggregates = make(map[message.Category]Aggregate)
}
