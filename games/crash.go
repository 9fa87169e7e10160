package games

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CrashBucket is a weighted range of crash points
type CrashBucket struct {
	Low    decimal.Decimal
	High   decimal.Decimal
	Weight float64
}

// CrashConfig describes a crash round
type CrashConfig struct {
	Buckets []CrashBucket
	Base    decimal.Decimal
	Growth  decimal.Decimal
	Ceiling decimal.Decimal
	Tick    time.Duration
}

// DefaultCrashBuckets is the 13-bucket table; weights total 101 and are normalized on draw
func DefaultCrashBuckets() []CrashBucket {
	rows := []struct {
		low, high string
		weight    float64
	}{
		{"0.51", "1.00", 2},
		{"1.10", "1.30", 38},
		{"1.31", "1.50", 25},
		{"1.51", "1.75", 12},
		{"1.76", "2.00", 7},
		{"2.01", "2.30", 5},
		{"2.31", "2.50", 3},
		{"2.51", "3.00", 2},
		{"3.01", "4.00", 2},
		{"4.01", "5.00", 2},
		{"5.00", "10.00", 1.5},
		{"10.00", "15.00", 1},
		{"16.00", "30.00", 0.5},
	}
	buckets := make([]CrashBucket, len(rows))
	for i, row := range rows {
		buckets[i] = CrashBucket{
			Low:    decimal.RequireFromString(row.low),
			High:   decimal.RequireFromString(row.high),
			Weight: row.weight,
		}
	}
	return buckets
}

// DefaultCrashConfig starts at 0.50x and grows 4.5% every quarter second up to 30x
func DefaultCrashConfig() CrashConfig {
	return CrashConfig{
		Buckets: DefaultCrashBuckets(),
		Base:    decimal.RequireFromString("0.50"),
		Growth:  decimal.RequireFromString("1.045"),
		Ceiling: decimal.RequireFromString("30.0"),
		Tick:    250 * time.Millisecond,
	}
}

// Validate checks the round parameters
func (c CrashConfig) Validate() error {
	if len(c.Buckets) == 0 {
		return fmt.Errorf("crash table must have at least one bucket")
	}
	var total float64
	for i, b := range c.Buckets {
		if b.Weight < 0 {
			return fmt.Errorf("bucket %d has a negative weight", i)
		}
		if b.High.LessThan(b.Low) {
			return fmt.Errorf("bucket %d range is inverted", i)
		}
		total += b.Weight
	}
	if total <= 0 {
		return fmt.Errorf("crash table weights must sum to a positive value")
	}
	if !c.Growth.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("growth factor must be greater than 1")
	}
	if !c.Base.IsPositive() || c.Ceiling.LessThanOrEqual(c.Base) {
		return fmt.Errorf("ceiling must be above a positive base")
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	return nil
}

// ParseCrashBuckets parses "low-high:weight" entries separated by commas,
// e.g. "1.10-1.30:38,1.31-1.50:25"
func ParseCrashBuckets(raw string) ([]CrashBucket, error) {
	var buckets []CrashBucket
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		rangePart, weightPart, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("bucket %q is missing a weight", entry)
		}
		lowPart, highPart, ok := strings.Cut(rangePart, "-")
		if !ok {
			return nil, fmt.Errorf("bucket %q is missing a range", entry)
		}
		low, err := decimal.NewFromString(strings.TrimSpace(lowPart))
		if err != nil {
			return nil, fmt.Errorf("invalid bucket low %q: %w", lowPart, err)
		}
		high, err := decimal.NewFromString(strings.TrimSpace(highPart))
		if err != nil {
			return nil, fmt.Errorf("invalid bucket high %q: %w", highPart, err)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(weightPart), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket weight %q: %w", weightPart, err)
		}
		buckets = append(buckets, CrashBucket{Low: low, High: high, Weight: weight})
	}
	return buckets, nil
}

// SampleCrashPoint picks a bucket by weight, then a point uniformly inside it,
// rounded to two decimals
func SampleCrashPoint(buckets []CrashBucket, r Random) decimal.Decimal {
	var total float64
	for _, b := range buckets {
		total += b.Weight
	}

	pick := r.Float64() * total
	var acc float64
	for _, b := range buckets {
		acc += b.Weight
		if pick < acc {
			return UniformMultiplier(r, b.Low, b.High, 2)
		}
	}
	last := buckets[len(buckets)-1]
	return UniformMultiplier(r, last.Low, last.High, 2)
}

// CrashState is where a round stands
type CrashState int

const (
	CrashRunning CrashState = iota
	CrashCrashed
	CrashCashedOut
)

// CrashRound is a single crash round. It is not safe for concurrent use.
type CrashRound struct {
	cfg     CrashConfig
	crashAt decimal.Decimal
	current decimal.Decimal
	ticks   int
	state   CrashState
}

// NewCrashRound samples the hidden crash point and starts at the base multiplier
func NewCrashRound(cfg CrashConfig, r Random) *CrashRound {
	return NewCrashRoundAt(cfg, SampleCrashPoint(cfg.Buckets, r))
}

// NewCrashRoundAt starts a round with a known crash point
func NewCrashRoundAt(cfg CrashConfig, crashAt decimal.Decimal) *CrashRound {
	round := &CrashRound{cfg: cfg, crashAt: crashAt, current: cfg.Base}
	if round.current.GreaterThanOrEqual(crashAt) {
		round.state = CrashCrashed
	}
	return round
}

// Tick grows the multiplier by one step and reports whether the round crashed
func (c *CrashRound) Tick() (decimal.Decimal, bool) {
	if c.state != CrashRunning {
		return c.current, c.state == CrashCrashed
	}

	next := c.current.Mul(c.cfg.Growth).Round(8)
	if next.GreaterThan(c.cfg.Ceiling) {
		next = c.cfg.Ceiling
	}
	c.current = next
	c.ticks++

	if c.current.GreaterThanOrEqual(c.crashAt) || c.current.GreaterThanOrEqual(c.cfg.Ceiling) {
		c.state = CrashCrashed
		return c.current, true
	}
	return c.current, false
}

// CashOut locks in the current multiplier truncated to two decimals, so the
// payout never exceeds what the tick showed
func (c *CrashRound) CashOut() (decimal.Decimal, error) {
	if c.state != CrashRunning {
		return decimal.Zero, ErrRoundOver
	}
	c.state = CrashCashedOut
	return c.current.RoundFloor(2), nil
}

func (c *CrashRound) Current() decimal.Decimal    { return c.current }
func (c *CrashRound) CrashPoint() decimal.Decimal { return c.crashAt }
func (c *CrashRound) Ticks() int                  { return c.ticks }
func (c *CrashRound) State() CrashState           { return c.state }
