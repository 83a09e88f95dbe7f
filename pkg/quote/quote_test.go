package quote_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/shopspring/decimal"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func makeMinuteFrame(t *testing.T, n int) *quote.QuoteFrame {
	t.Helper()
	sym := quote.Symbol{Ticker: "TEST"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	quotes := make([]quote.Quote, n)
	for i := 0; i < n; i++ {
		close := 100.0 + float64(i%7)
		quotes[i] = quote.Quote{
			Symbol:    sym,
			Timeframe: quote.Minutes(1),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      d(close),
			High:      d(close + 1),
			Low:       d(close - 1),
			Close:     d(close),
			Volume:    d(10),
		}
	}
	f, err := quote.NewQuoteFrame(sym, quote.Minutes(1), quotes)
	if err != nil {
		t.Fatalf("NewQuoteFrame: %v", err)
	}
	return f
}

func TestQuoteFrameInvariants(t *testing.T) {
	f := makeMinuteFrame(t, 10)
	if f.Len() != 10 {
		t.Fatalf("expected 10 bars, got %d", f.Len())
	}
	ts := f.Timestamps()
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestQuoteValidateRejectsBadBar(t *testing.T) {
	sym := quote.Symbol{Ticker: "TEST"}
	bad := quote.Quote{
		Symbol:    sym,
		Timeframe: quote.Minutes(1),
		Timestamp: time.Now(),
		Open:      d(100),
		High:      d(99), // high below open: invalid
		Low:       d(95),
		Close:     d(100),
		Volume:    d(1),
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error for high < open")
	}
}

func TestAggregateConsistency(t *testing.T) {
	f := makeMinuteFrame(t, 240)
	agg, err := quote.Aggregate(f, quote.Minutes(60))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.Frame.Len() != 4 {
		t.Fatalf("expected 4 aggregated bars, got %d", agg.Frame.Len())
	}
	for i := 0; i < agg.Frame.Len(); i++ {
		indices := agg.SourceIndices[i]
		if len(indices) != 60 {
			t.Fatalf("bucket %d: expected 60 source indices, got %d", i, len(indices))
		}
		if agg.Partial[i] {
			t.Fatalf("bucket %d: unexpected partial flag on a full bucket", i)
		}

		wantHigh := f.High()[indices[0]]
		wantVolume := decimal.Zero
		for _, idx := range indices {
			if f.High()[idx].GreaterThan(wantHigh) {
				wantHigh = f.High()[idx]
			}
			wantVolume = wantVolume.Add(f.Volume()[idx])
		}
		if !agg.Frame.High()[i].Equal(wantHigh) {
			t.Fatalf("bucket %d: high mismatch: got %s want %s", i, agg.Frame.High()[i], wantHigh)
		}
		if !agg.Frame.Volume()[i].Equal(wantVolume) {
			t.Fatalf("bucket %d: volume mismatch: got %s want %s", i, agg.Frame.Volume()[i], wantVolume)
		}
	}
}

func TestAggregatePartitionsSourceBars(t *testing.T) {
	f := makeMinuteFrame(t, 100) // not a multiple of 60 -> partial final bucket
	agg, err := quote.Aggregate(f, quote.Minutes(60))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	seen := make(map[int]bool, f.Len())
	for _, indices := range agg.SourceIndices {
		for _, idx := range indices {
			if seen[idx] {
				t.Fatalf("source bar %d attributed to more than one bucket", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != f.Len() {
		t.Fatalf("expected every source bar attributed to a bucket, got %d of %d", len(seen), f.Len())
	}
	if !agg.Partial[len(agg.Partial)-1] {
		t.Fatal("expected final bucket to be marked partial")
	}
}

func TestAggregateRejectsCustomTimeframe(t *testing.T) {
	f := makeMinuteFrame(t, 10)
	if _, err := quote.Aggregate(f, quote.Custom("session")); err == nil {
		t.Fatal("expected error aggregating into a custom timeframe")
	}
}

func TestCursorAlignsHigherTimeframe(t *testing.T) {
	base := makeMinuteFrame(t, 180)
	agg, err := quote.Aggregate(base, quote.Minutes(60))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	frames := map[string]*quote.QuoteFrame{
		"1m":  base,
		"60m": agg.Frame,
	}
	cur, err := quote.NewCursor(frames)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if cur.PrimaryTimeframe().String() != quote.Minutes(1).String() {
		t.Fatalf("expected 1-minute primary, got %s", cur.PrimaryTimeframe())
	}

	var sawHourIdx []int
	for cur.Step() {
		sawHourIdx = append(sawHourIdx, cur.Index("60m"))
	}

	// Before the first hourly bar closes, the index must be -1.
	if sawHourIdx[0] != -1 {
		t.Fatalf("expected -1 before first hourly bar closes, got %d", sawHourIdx[0])
	}
	// At and after minute 60, the hourly index must have advanced to 0.
	if sawHourIdx[60] != 0 {
		t.Fatalf("expected hourly index 0 at primary bar 60, got %d", sawHourIdx[60])
	}
	// Index must be monotone non-decreasing.
	for i := 1; i < len(sawHourIdx); i++ {
		if sawHourIdx[i] < sawHourIdx[i-1] {
			t.Fatalf("hourly index regressed at primary bar %d: %d -> %d", i, sawHourIdx[i-1], sawHourIdx[i])
		}
	}
}

func TestTimeFrameConversions(t *testing.T) {
	if m, ok := quote.Hours(2).AsMinutes(); !ok || m != 120 {
		t.Fatalf("expected 120 minutes, got %d ok=%v", m, ok)
	}
	if _, ok := quote.Custom("session").AsMinutes(); ok {
		t.Fatal("expected custom timeframe to have no minute conversion")
	}
	if !quote.Hours(1).Equal(quote.Minutes(60)) {
		t.Fatal("expected 1h to equal 60m")
	}
}
