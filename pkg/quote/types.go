// Package quote provides immutable OHLCV series keyed by symbol and
// timeframe, aggregation across timeframes, and a timestamp-aligned
// multi-timeframe bar cursor.
package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is an opaque instrument descriptor.
type Symbol struct {
	Ticker string
	Venue  string
}

func (s Symbol) String() string {
	if s.Venue == "" {
		return s.Ticker
	}
	return fmt.Sprintf("%s@%s", s.Ticker, s.Venue)
}

// TimeFrameUnit tags the unit a TimeFrame is expressed in.
type TimeFrameUnit string

const (
	UnitMinutes TimeFrameUnit = "minutes"
	UnitHours   TimeFrameUnit = "hours"
	UnitDays    TimeFrameUnit = "days"
	UnitWeeks   TimeFrameUnit = "weeks"
	UnitMonths  TimeFrameUnit = "months"
	UnitCustom  TimeFrameUnit = "custom"
)

// TimeFrame is the tagged sum Minutes(u) | Hours(u) | Days(u) | Weeks(u) |
// Months(u) | Custom(text).
type TimeFrame struct {
	Unit   TimeFrameUnit
	Amount uint
	Custom string
}

func Minutes(u uint) TimeFrame { return TimeFrame{Unit: UnitMinutes, Amount: u} }
func Hours(u uint) TimeFrame   { return TimeFrame{Unit: UnitHours, Amount: u} }
func Days(u uint) TimeFrame    { return TimeFrame{Unit: UnitDays, Amount: u} }
func Weeks(u uint) TimeFrame   { return TimeFrame{Unit: UnitWeeks, Amount: u} }
func Months(u uint) TimeFrame  { return TimeFrame{Unit: UnitMonths, Amount: u} }
func Custom(text string) TimeFrame {
	return TimeFrame{Unit: UnitCustom, Custom: text}
}

// IsCustom reports whether the timeframe cannot be converted to minutes.
func (t TimeFrame) IsCustom() bool { return t.Unit == UnitCustom }

// AsMinutes converts the timeframe to a minute count. Custom timeframes
// cannot be converted; ok is false in that case.
func (t TimeFrame) AsMinutes() (minutes int64, ok bool) {
	switch t.Unit {
	case UnitMinutes:
		return int64(t.Amount), true
	case UnitHours:
		return int64(t.Amount) * 60, true
	case UnitDays:
		return int64(t.Amount) * 60 * 24, true
	case UnitWeeks:
		return int64(t.Amount) * 60 * 24 * 7, true
	case UnitMonths:
		// Approximate a month as 30 days. Aggregate and Cursor also align
		// buckets with this value, so monthly buckets are 30-day spans
		// rather than calendar months.
		return int64(t.Amount) * 60 * 24 * 30, true
	default:
		return 0, false
	}
}

func (t TimeFrame) String() string {
	switch t.Unit {
	case UnitCustom:
		return t.Custom
	default:
		return fmt.Sprintf("%d%s", t.Amount, string(t.Unit[0]))
	}
}

// ParseTimeFrame parses the short suffix notation used in config files and
// candidate builder pools ("1m", "5m", "4h", "1d", "1w", "1M") into a
// TimeFrame. Anything that doesn't match the suffix grammar is kept as a
// Custom timeframe rather than rejected outright.
func ParseTimeFrame(s string) (TimeFrame, error) {
	if s == "" {
		return TimeFrame{}, fmt.Errorf("quote: empty timeframe string")
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	var amount uint
	if numPart != "" {
		if _, err := fmt.Sscanf(numPart, "%d", &amount); err != nil {
			return Custom(s), nil
		}
	} else {
		amount = 1
	}
	switch unit {
	case 'm':
		return Minutes(amount), nil
	case 'h':
		return Hours(amount), nil
	case 'd':
		return Days(amount), nil
	case 'w':
		return Weeks(amount), nil
	case 'M':
		return Months(amount), nil
	default:
		return Custom(s), nil
	}
}

// Equal reports whether two timeframes denote the same duration.
func (t TimeFrame) Equal(o TimeFrame) bool {
	if t.Unit == UnitCustom || o.Unit == UnitCustom {
		return t.Unit == o.Unit && t.Custom == o.Custom
	}
	tm, _ := t.AsMinutes()
	om, _ := o.AsMinutes()
	return tm == om
}

// Quote is a single OHLCV bar.
type Quote struct {
	Symbol    Symbol
	Timeframe TimeFrame
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Validate checks that low <= min(open,close) <= max(open,close) <= high,
// and that volume >= 0.
func (q Quote) Validate() error {
	lo := decimal.Min(q.Open, q.Close)
	hi := decimal.Max(q.Open, q.Close)
	if q.Low.GreaterThan(lo) || lo.GreaterThan(hi) || hi.GreaterThan(q.High) {
		return fmt.Errorf("quote invariant violated: low=%s open=%s close=%s high=%s",
			q.Low, q.Open, q.Close, q.High)
	}
	if q.Volume.IsNegative() {
		return fmt.Errorf("quote invariant violated: negative volume %s", q.Volume)
	}
	return nil
}
