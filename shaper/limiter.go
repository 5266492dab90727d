package shaper

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/telemetrystream/errors"
)

// LimiterConfig configures token-bucket admission in front of the shaper.
type LimiterConfig struct {
	// Rate is the sustained number of events admitted per second.
	Rate float64
	// Burst is the bucket depth.
	Burst int
	// ReportInterval is the minimum spacing between shed reports.
	ReportInterval time.Duration
}

// Validate checks the configuration
func (c LimiterConfig) Validate() error {
	if c.Rate <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: rate must be positive", errors.ErrInvalidConfig),
			"limiter", "Validate", "validate config")
	}
	if c.Burst < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: burst must be at least 1", errors.ErrInvalidConfig),
			"limiter", "Validate", "validate config")
	}
	return nil
}

// ShedReport summarizes events shed since the previous report.
type ShedReport struct {
	Shed  int
	Since time.Time
	Limit float64
	Burst int
}

// Error renders the report as a rate limit message
func (r ShedReport) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d events shed since %s (limit %.0f/s, burst %d)",
		r.Shed, r.Since.Format(time.RFC3339), r.Limit, r.Burst)
}

// Unwrap lets the report match errors.ErrRateLimited
func (r ShedReport) Unwrap() error {
	return errors.ErrRateLimited
}

// Limiter sheds events above a sustained rate. Shedding is reported at most once
// per ReportInterval so a flood produces a bounded number of error records.
// It is not safe for concurrent use.
type Limiter struct {
	cfg        LimiterConfig
	bucket     *rate.Limiter
	shed       int
	shedSince  time.Time
	lastReport time.Time
	reported   bool
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 5 * time.Second
	}
	return &Limiter{
		cfg:    cfg,
		bucket: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	}, nil
}

// Allow reports whether an event arriving at now is admitted. When it is not and
// a report is due, the returned report is non-nil.
func (l *Limiter) Allow(now time.Time) (bool, *ShedReport) {
	if l.bucket.AllowN(now, 1) {
		return true, nil
	}

	if l.shed == 0 {
		l.shedSince = now
	}
	l.shed++

	if l.reported && now.Sub(l.lastReport) < l.cfg.ReportInterval {
		return false, nil
	}

	report := &ShedReport{Shed: l.shed, Since: l.shedSince, Limit: l.cfg.Rate, Burst: l.cfg.Burst}
	l.shed = 0
	l.lastReport = now
	l.reported = true
	return false, report
}
