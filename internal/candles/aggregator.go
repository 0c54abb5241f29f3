// Package candles reduces the tick stream into fixed-width OHLC buckets.
package candles

import (
	"sync"
	"time"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// BucketStart returns the floor-aligned bucket start for a tick timestamp,
// in unix seconds.
func BucketStart(unixTS, intervalSeconds int64) int64 {
	return unixTS / intervalSeconds * intervalSeconds
}

type seriesKey struct {
	token    uint32
	interval int64
}

// series holds one mutable current candle plus immutable sealed history.
type series struct {
	current *models.Candle
	bucket  int64
	history []models.Candle
}

// Aggregator maintains one candle series per (instrument, interval).
// Intervals are derived independently from the tick stream; state for one
// interval never seeds another.
type Aggregator struct {
	intervals  []int64
	maxHistory int
	onSeal     func(models.Candle)

	mu     sync.RWMutex
	series map[seriesKey]*series
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithMaxHistory caps the sealed candles kept in memory per series.
func WithMaxHistory(n int) Option {
	return func(a *Aggregator) { a.maxHistory = n }
}

// WithSealHook registers a callback invoked for every sealed candle.
func WithSealHook(fn func(models.Candle)) Option {
	return func(a *Aggregator) { a.onSeal = fn }
}

// NewAggregator creates an aggregator for the given interval widths (seconds).
func NewAggregator(intervals []int64, opts ...Option) *Aggregator {
	a := &Aggregator{
		intervals:  append([]int64(nil), intervals...),
		maxHistory: 500,
		series:     make(map[seriesKey]*series),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Intervals returns the supported interval widths.
func (a *Aggregator) Intervals() []int64 {
	return append([]int64(nil), a.intervals...)
}

// OnTick applies a tick to every interval series for its instrument.
// Implements the feed.Consumer interface; the hub guarantees per-instrument
// arrival order.
func (a *Aggregator) OnTick(tick models.Tick) {
	ts := tick.Timestamp.Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, interval := range a.intervals {
		a.apply(tick, ts, interval)
	}
}

func (a *Aggregator) apply(tick models.Tick, ts, interval int64) {
	key := seriesKey{token: tick.Token, interval: interval}
	bucket := BucketStart(ts, interval)

	sr, ok := a.series[key]
	if !ok {
		sr = &series{}
		a.series[key] = sr
	}

	switch {
	case sr.current == nil || bucket > sr.bucket:
		a.seal(sr)
		sr.bucket = bucket
		sr.current = &models.Candle{
			Token:     tick.Token,
			Interval:  interval,
			Timestamp: bucketTime(bucket),
			Open:      tick.LTP,
			High:      tick.LTP,
			Low:       tick.LTP,
			Close:     tick.LTP,
			Volume:    tick.Volume,
		}
	case bucket == sr.bucket:
		if tick.LTP > sr.current.High {
			sr.current.High = tick.LTP
		}
		if tick.LTP < sr.current.Low {
			sr.current.Low = tick.LTP
		}
		sr.current.Close = tick.LTP
		sr.current.Volume += tick.Volume
	default:
		// Late tick: its bucket precedes the current one. Ordering is
		// monotonic per instrument per interval, so it is discarded.
	}
}

// seal moves the current candle into immutable history.
func (a *Aggregator) seal(sr *series) {
	if sr.current == nil {
		return
	}
	sealed := *sr.current
	sr.history = append(sr.history, sealed)
	if a.maxHistory > 0 && len(sr.history) > a.maxHistory {
		sr.history = sr.history[len(sr.history)-a.maxHistory:]
	}
	sr.current = nil

	if a.onSeal != nil {
		a.onSeal(sealed)
	}
}

// Candles returns up to count candles for (token, interval), oldest first,
// ending with the current in-progress candle if one exists. Returns a
// ValidationError for an unsupported interval.
func (a *Aggregator) Candles(token uint32, interval int64, count int) ([]models.Candle, error) {
	if !a.supported(interval) {
		return nil, errors.NewValidationError("interval", interval, "unsupported candle interval")
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	sr, ok := a.series[seriesKey{token: token, interval: interval}]
	if !ok {
		return nil, nil
	}

	out := make([]models.Candle, 0, len(sr.history)+1)
	out = append(out, sr.history...)
	if sr.current != nil {
		out = append(out, *sr.current)
	}

	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func bucketTime(bucket int64) time.Time {
	return time.Unix(bucket, 0).UTC()
}

func (a *Aggregator) supported(interval int64) bool {
	for _, w := range a.intervals {
		if w == interval {
			return true
		}
	}
	return false
}
