package testutil

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Canned payloads covering every inbound frame shape.
var (
	TestEventPayloads = []string{
		`{"id":"cpu-1","type":"cpu","value":70,"timestamp":"2024-01-01T00:00:00Z"}`,
		`{"id":"cpu-2","type":"cpu","value":80,"timestamp":"2024-01-01T00:00:01Z"}`,
		`{"id":"cpu-3","type":"cpu","value":90,"timestamp":"2024-01-01T00:00:02Z"}`,
		`{"id":"mem-1","type":"memory","value":55.5,"timestamp":1704067200000,"metadata":{"region":"eu-west-1"}}`,
		`{"type":"disk","value":12.25}`,
	}

	TestFaultPayloads = []string{
		`{"error":"Request timeout","code":"TIMEOUT","severity":"warning"}`,
		`{"error":"Rate limit exceeded","code":"RATE_LIMIT","severity":"error"}`,
		`{"error":"Data validation failed","code":"DATA_CORRUPTION","severity":"critical"}`,
	}

	TestControlPayloads = []string{
		`{"type":"connected","message":"Connected to metrics stream"}`,
		`{"type":"pong","timestamp":"2024-01-01T00:00:00Z"}`,
	}

	TestMalformedPayloads = []string{
		`not json`,
		`[1,2,3]`,
		`{"type":"cpu"}`,
		`{"type":"cpu","value":150}`,
		`{"type":"CPU!","value":10}`,
	}
)

// EventPayload encodes one telemetry event.
func EventPayload(category string, value float64) []byte {
	b, _ := json.Marshal(map[string]any{"type": category, "value": value})
	return b
}

// FaultPayload encodes a server fault envelope.
func FaultPayload(code, message, severity string) []byte {
	b, _ := json.Marshal(map[string]any{
		"error":     message,
		"code":      code,
		"severity":  severity,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	return b
}

// Profile shapes the values produced for one category.
type Profile struct {
	Baseline         float64
	Variance         float64
	SpikeProbability float64
	SpikeMagnitude   float64
}

// DefaultProfiles mirrors a typical host: steady memory, noisy network.
var DefaultProfiles = map[string]Profile{
	"cpu":     {Baseline: 45, Variance: 25, SpikeProbability: 0.10, SpikeMagnitude: 30},
	"memory":  {Baseline: 60, Variance: 15, SpikeProbability: 0.08, SpikeMagnitude: 20},
	"network": {Baseline: 30, Variance: 40, SpikeProbability: 0.15, SpikeMagnitude: 40},
	"disk":    {Baseline: 25, Variance: 20, SpikeProbability: 0.05, SpikeMagnitude: 25},
}

// Generator produces a reproducible bursty telemetry stream.
type Generator struct {
	rng        *rand.Rand
	profiles   map[string]Profile
	categories []string
	seq        int
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:        rand.New(rand.NewSource(seed)),
		profiles:   DefaultProfiles,
		categories: []string{"cpu", "memory", "network", "disk"},
	}
}

// Value draws the next value for category, clamped to [0,100] and rounded to
// one decimal place.
func (g *Generator) Value(category string) float64 {
	p := g.profiles[category]
	v := p.Baseline + (g.rng.Float64()-0.5)*p.Variance
	if g.rng.Float64() < p.SpikeProbability {
		v += p.SpikeMagnitude * g.rng.Float64()
	}
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*10) / 10
}

// Next returns one event payload per category, stamped with at.
func (g *Generator) Next(at time.Time) [][]byte {
	out := make([][]byte, 0, len(g.categories))
	for _, c := range g.categories {
		g.seq++
		b, _ := json.Marshal(map[string]any{
			"id":        fmt.Sprintf("%s_%d", c, g.seq),
			"type":      c,
			"value":     g.Value(c),
			"timestamp": at.UTC().Format(time.RFC3339Nano),
			"metadata":  map[string]string{"source": "generator"},
		})
		out = append(out, b)
	}
	return out
}

// Burst returns n rounds of Next spaced by step starting at start.
func (g *Generator) Burst(start time.Time, n int, step time.Duration) [][]byte {
	var out [][]byte
	for i := 0; i < n; i++ {
		out = append(out, g.Next(start.Add(time.Duration(i)*step))...)
	}
	return out
}
