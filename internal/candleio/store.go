// Package candleio is the OHLCV data-source collaborator: it supplies a
// list of candles per (symbol, base_timeframe) as []Quote sorted by
// timestamp, loading each (symbol, timeframe) pair from a JSON file on
// disk and caching the parsed *quote.QuoteFrame in memory so the evaluator
// can share it by reference across a whole generation.
package candleio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// Loader is the collaborator boundary a Builder/Evaluator pulls candles
// through: a list of OHLCV candles per (symbol, base_timeframe), sorted by
// timestamp, as a *quote.QuoteFrame ready for NewAggregatedQuoteFrame / the
// bar cursor.
type Loader interface {
	LoadFrame(ctx context.Context, symbol quote.Symbol, tf quote.TimeFrame, start, end time.Time) (*quote.QuoteFrame, error)
}

// bar is the on-disk JSON shape, one per line's worth of OHLCV. Decimal
// fields are plain strings so the file format never loses precision to a
// float64 round trip.
type bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      string    `json:"open"`
	High      string    `json:"high"`
	Low       string    `json:"low"`
	Close     string    `json:"close"`
	Volume    string    `json:"volume"`
}

func (b bar) toQuote(symbol quote.Symbol, tf quote.TimeFrame) (quote.Quote, error) {
	open, err := decimal.NewFromString(b.Open)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("candleio: bar at %s: open: %w", b.Timestamp, err)
	}
	high, err := decimal.NewFromString(b.High)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("candleio: bar at %s: high: %w", b.Timestamp, err)
	}
	low, err := decimal.NewFromString(b.Low)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("candleio: bar at %s: low: %w", b.Timestamp, err)
	}
	closePrice, err := decimal.NewFromString(b.Close)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("candleio: bar at %s: close: %w", b.Timestamp, err)
	}
	volume, err := decimal.NewFromString(b.Volume)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("candleio: bar at %s: volume: %w", b.Timestamp, err)
	}
	return quote.Quote{
		Symbol: symbol, Timeframe: tf, Timestamp: b.Timestamp,
		Open: open, High: high, Low: low, Close: closePrice, Volume: volume,
	}, nil
}

// FileStore loads candles from one JSON file per (symbol, timeframe) under
// a data directory, caching the parsed QuoteFrame in memory. There is no
// fallback that fabricates candles when a file is missing: a research
// engine that silently invents data would make every downstream backtest
// meaningless, so this store errors instead.
type FileStore struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string]*quote.QuoteFrame
}

// NewFileStore builds a FileStore rooted at dataDir. The directory is not
// required to exist yet; it is created lazily by anything that writes to
// it (this package never writes).
func NewFileStore(logger *zap.Logger, dataDir string) *FileStore {
	return &FileStore{logger: logger, dataDir: dataDir, cache: make(map[string]*quote.QuoteFrame)}
}

func cacheKey(symbol quote.Symbol, tf quote.TimeFrame) string {
	return symbol.String() + "|" + tf.String()
}

// LoadFrame implements Loader. The on-disk filename is
// "<ticker>_<timeframe>.json" under dataDir, an array of bar values sorted
// by timestamp.
func (s *FileStore) LoadFrame(ctx context.Context, symbol quote.Symbol, tf quote.TimeFrame, start, end time.Time) (*quote.QuoteFrame, error) {
	key := cacheKey(symbol, tf)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return sliceFrame(cached, start, end)
	}
	s.mu.RUnlock()

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", symbol.Ticker, tf.String()))
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("candleio: loading %s: %w", filename, err)
	}

	var bars []bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("candleio: parsing %s: %w", filename, err)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	quotes := make([]quote.Quote, 0, len(bars))
	for _, b := range bars {
		q, err := b.toQuote(symbol, tf)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}

	frame, err := quote.NewQuoteFrame(symbol, tf, quotes)
	if err != nil {
		return nil, fmt.Errorf("candleio: building frame for %s %s: %w", symbol, tf, err)
	}

	s.mu.Lock()
	s.cache[key] = frame
	s.mu.Unlock()

	s.logger.Info("loaded candle frame",
		zap.String("symbol", symbol.String()),
		zap.String("timeframe", tf.String()),
		zap.Int("bars", frame.Len()))

	return sliceFrame(frame, start, end)
}

// sliceFrame narrows a cached frame to [start, end]; a zero start/end
// means "no bound on that side".
func sliceFrame(frame *quote.QuoteFrame, start, end time.Time) (*quote.QuoteFrame, error) {
	if start.IsZero() && end.IsZero() {
		return frame, nil
	}
	quotes := frame.Quotes()
	from, to := 0, len(quotes)
	if !start.IsZero() {
		from = sort.Search(len(quotes), func(i int) bool { return !quotes[i].Timestamp.Before(start) })
	}
	if !end.IsZero() {
		to = sort.Search(len(quotes), func(i int) bool { return quotes[i].Timestamp.After(end) })
	}
	if from >= to {
		return quote.NewQuoteFrame(frame.Symbol(), frame.Timeframe(), nil)
	}
	return quote.NewQuoteFrame(frame.Symbol(), frame.Timeframe(), append([]quote.Quote(nil), quotes[from:to]...))
}

// MemoryStore is an in-memory Loader, primarily for tests and the
// candidate-builder's quick-iteration mode, where candles are constructed
// programmatically rather than read from disk.
type MemoryStore struct {
	mu     sync.RWMutex
	frames map[string]*quote.QuoteFrame
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: make(map[string]*quote.QuoteFrame)}
}

// Put registers a frame for later retrieval by (symbol, timeframe).
func (m *MemoryStore) Put(frame *quote.QuoteFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[cacheKey(frame.Symbol(), frame.Timeframe())] = frame
}

// LoadFrame implements Loader.
func (m *MemoryStore) LoadFrame(ctx context.Context, symbol quote.Symbol, tf quote.TimeFrame, start, end time.Time) (*quote.QuoteFrame, error) {
	m.mu.RLock()
	frame, ok := m.frames[cacheKey(symbol, tf)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("candleio: no frame registered for %s %s", symbol, tf)
	}
	return sliceFrame(frame, start, end)
}

// LoadAll resolves every timeframe a strategy definition requires into the
// map[string]*quote.QuoteFrame shape internal/backtest.Executor.Run and
// internal/evaluator.NewEvaluator expect, keyed by TimeFrame.String().
func LoadAll(ctx context.Context, loader Loader, symbol quote.Symbol, tfs []quote.TimeFrame, start, end time.Time) (map[string]*quote.QuoteFrame, error) {
	frames := make(map[string]*quote.QuoteFrame, len(tfs))
	for _, tf := range tfs {
		frame, err := loader.LoadFrame(ctx, symbol, tf, start, end)
		if err != nil {
			return nil, err
		}
		frames[tf.String()] = frame
	}
	return frames, nil
}
