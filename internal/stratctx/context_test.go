package stratctx_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/strategyforge/internal/stratctx"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
	"github.com/shopspring/decimal"
)

func buildFrame(t *testing.T) *quote.QuoteFrame {
	t.Helper()
	sym := quote.Symbol{Ticker: "TEST"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	quotes := []quote.Quote{
		{Symbol: sym, Timeframe: quote.Minutes(1), Timestamp: start, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10)},
	}
	f, err := quote.NewQuoteFrame(sym, quote.Minutes(1), quotes)
	if err != nil {
		t.Fatalf("NewQuoteFrame: %v", err)
	}
	return f
}

func TestContextMissingTimeframe(t *testing.T) {
	frame := buildFrame(t)
	ctx := stratctx.New(map[string]*quote.QuoteFrame{"1m": frame}, quote.Minutes(1))
	if _, err := ctx.Timeframe(quote.Hours(1)); err == nil {
		t.Fatal("expected missing timeframe error")
	}
}

func TestContextPriceFieldAndIndicatorLookup(t *testing.T) {
	frame := buildFrame(t)
	ctx := stratctx.New(map[string]*quote.QuoteFrame{"1m": frame}, quote.Minutes(1))
	td := ctx.PrimaryTimeframe()
	td.Indicators["rsi14"] = []float64{50}

	closeSeries, err := td.PriceField("close")
	if err != nil || closeSeries[0] != 100 {
		t.Fatalf("expected close[0]=100, got %v err=%v", closeSeries, err)
	}
	if _, err := td.IndicatorSeries("missing"); err == nil {
		t.Fatal("expected missing indicator alias error")
	}
	s, err := td.IndicatorSeries("rsi14")
	if err != nil || s[0] != 50 {
		t.Fatalf("expected rsi14[0]=50, got %v err=%v", s, err)
	}
}

func TestResolveDataSeriesSource(t *testing.T) {
	frame := buildFrame(t)
	ctx := stratctx.New(map[string]*quote.QuoteFrame{"1m": frame}, quote.Minutes(1))
	series, err := ctx.Resolve(strategydef.DataSeriesSource{Kind: strategydef.SeriesPrice, Field: "high"}, quote.Minutes(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if series[0] != 101 {
		t.Fatalf("expected high[0]=101, got %v", series[0])
	}
}
