package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteFrame is an immutable, ordered sequence of quotes for one
// (symbol, timeframe) pair, with column-wise views precomputed once at
// construction. It is created once per (symbol, timeframe) per backtest and
// never mutated afterwards.
type QuoteFrame struct {
	symbol    Symbol
	timeframe TimeFrame
	quotes    []Quote

	open      []decimal.Decimal
	high      []decimal.Decimal
	low       []decimal.Decimal
	close     []decimal.Decimal
	volume    []decimal.Decimal
	timestamp []time.Time
}

// NewQuoteFrame builds a QuoteFrame from a chronologically sorted slice of
// quotes. It validates strictly increasing timestamps and per-bar OHLC
// invariants.
func NewQuoteFrame(symbol Symbol, tf TimeFrame, quotes []Quote) (*QuoteFrame, error) {
	f := &QuoteFrame{
		symbol:    symbol,
		timeframe: tf,
		quotes:    quotes,
		open:      make([]decimal.Decimal, len(quotes)),
		high:      make([]decimal.Decimal, len(quotes)),
		low:       make([]decimal.Decimal, len(quotes)),
		close:     make([]decimal.Decimal, len(quotes)),
		volume:    make([]decimal.Decimal, len(quotes)),
		timestamp: make([]time.Time, len(quotes)),
	}

	var prev time.Time
	for i, q := range quotes {
		if err := q.Validate(); err != nil {
			return nil, newFeedError("NewQuoteFrame", "bar %d: %v", i, err)
		}
		if i > 0 && !q.Timestamp.After(prev) {
			return nil, newFeedError("NewQuoteFrame",
				"timestamps not strictly increasing at bar %d (%s <= %s)", i, q.Timestamp, prev)
		}
		prev = q.Timestamp

		f.open[i] = q.Open
		f.high[i] = q.High
		f.low[i] = q.Low
		f.close[i] = q.Close
		f.volume[i] = q.Volume
		f.timestamp[i] = q.Timestamp
	}

	return f, nil
}

func (f *QuoteFrame) Symbol() Symbol       { return f.symbol }
func (f *QuoteFrame) Timeframe() TimeFrame { return f.timeframe }
func (f *QuoteFrame) Len() int             { return len(f.quotes) }

func (f *QuoteFrame) Quote(i int) Quote { return f.quotes[i] }

// Quotes returns the underlying quote slice. Callers must not mutate it.
func (f *QuoteFrame) Quotes() []Quote { return f.quotes }

func (f *QuoteFrame) Open() []decimal.Decimal   { return f.open }
func (f *QuoteFrame) High() []decimal.Decimal   { return f.high }
func (f *QuoteFrame) Low() []decimal.Decimal    { return f.low }
func (f *QuoteFrame) Close() []decimal.Decimal  { return f.close }
func (f *QuoteFrame) Volume() []decimal.Decimal { return f.volume }
func (f *QuoteFrame) Timestamps() []time.Time   { return f.timestamp }

// CloseFloat64 returns the close series as float64, the representation the
// indicator runtime operates on.
func (f *QuoteFrame) CloseFloat64() []float64  { return toFloat64(f.close) }
func (f *QuoteFrame) OpenFloat64() []float64   { return toFloat64(f.open) }
func (f *QuoteFrame) HighFloat64() []float64   { return toFloat64(f.high) }
func (f *QuoteFrame) LowFloat64() []float64    { return toFloat64(f.low) }
func (f *QuoteFrame) VolumeFloat64() []float64 { return toFloat64(f.volume) }

func toFloat64(d []decimal.Decimal) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i], _ = v.Float64()
	}
	return out
}

// IndexAtOrBefore binary-searches the timestamp column for the latest index
// whose timestamp is <= ts. Returns -1 if ts precedes the first bar.
func (f *QuoteFrame) IndexAtOrBefore(ts time.Time) int {
	lo, hi := 0, len(f.timestamp)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if !f.timestamp[mid].After(ts) {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

// IndexBefore binary-searches the timestamp column for the latest index
// whose timestamp is strictly < ts. Returns -1 if no such bar exists. This is
// the "most recently closed bar" lookup the multi-timeframe cursor uses: a
// bar whose bucket starts exactly at ts is still forming, not yet closed.
func (f *QuoteFrame) IndexBefore(ts time.Time) int {
	lo, hi := 0, len(f.timestamp)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if f.timestamp[mid].Before(ts) {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}
