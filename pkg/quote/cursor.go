package quote

import "time"

// Cursor steps a primary (smallest-timeframe) frame bar by bar and keeps a
// set of higher/lower timeframe frames aligned to it. At every tick the
// index for a non-primary timeframe reflects the most recently closed bar
// of that timeframe whose aligned bucket start is <= the current primary
// bar's timestamp.
type Cursor struct {
	primary     *QuoteFrame
	primaryIdx  int
	frames      map[string]*QuoteFrame
	tfMinutes   map[string]int64
	indices     map[string]int
	bucketCache map[string]map[int64]int
}

// NewCursor builds a cursor over frames, which must include the primary
// frame plus every other timeframe the backtest references. frames are keyed
// by TimeFrame.String().
func NewCursor(frames map[string]*QuoteFrame) (*Cursor, error) {
	if len(frames) == 0 {
		return nil, newFeedError("NewCursor", "no timeframes supplied")
	}

	var primaryKey string
	var primaryMinutes int64 = -1
	tfMinutes := make(map[string]int64, len(frames))

	for key, f := range frames {
		minutes, ok := f.Timeframe().AsMinutes()
		if !ok {
			return nil, newFeedError("NewCursor", "timeframe %s has no minute conversion", f.Timeframe())
		}
		tfMinutes[key] = minutes
		if primaryMinutes < 0 || minutes < primaryMinutes {
			primaryMinutes = minutes
			primaryKey = key
		}
	}

	c := &Cursor{
		primary:     frames[primaryKey],
		primaryIdx:  -1,
		frames:      frames,
		tfMinutes:   tfMinutes,
		indices:     make(map[string]int, len(frames)),
		bucketCache: make(map[string]map[int64]int, len(frames)),
	}
	for key := range frames {
		c.indices[key] = -1
		c.bucketCache[key] = make(map[int64]int)
	}
	return c, nil
}

// PrimaryTimeframe returns the timeframe designated as primary
// (the smallest-minutes timeframe in the feed).
func (c *Cursor) PrimaryTimeframe() TimeFrame { return c.primary.Timeframe() }

// Done reports whether the primary frame is exhausted.
func (c *Cursor) Done() bool { return c.primaryIdx >= c.primary.Len()-1 }

// Step advances the primary index by one bar and resolves every other
// timeframe's index to its latest bar that starts before the bucket holding
// the current primary timestamp, i.e. its most recently closed bar. Returns
// false once the primary frame is exhausted.
func (c *Cursor) Step() bool {
	if c.Done() {
		return false
	}
	c.primaryIdx++
	primaryTS := c.primary.Timestamps()[c.primaryIdx]

	for key, frame := range c.frames {
		if frame == c.primary {
			c.indices[key] = c.primaryIdx
			continue
		}
		minutes := c.tfMinutes[key]
		aligned := alignToBucket(primaryTS, durationMinutes(minutes))
		bucketKey := aligned.Unix()

		if idx, cached := c.bucketCache[key][bucketKey]; cached {
			c.indices[key] = idx
			continue
		}

		idx := frame.IndexBefore(aligned)
		c.bucketCache[key][bucketKey] = idx
		c.indices[key] = idx
	}
	return true
}

// Index returns the current resolved index for the given timeframe key, or
// -1 if no bar of that timeframe has closed yet.
func (c *Cursor) Index(key string) int { return c.indices[key] }

// PrimaryIndex returns the current index into the primary frame.
func (c *Cursor) PrimaryIndex() int { return c.primaryIdx }

// Timestamp returns the current primary bar's timestamp.
func (c *Cursor) Timestamp() time.Time { return c.primary.Timestamps()[c.primaryIdx] }

func durationMinutes(m int64) time.Duration { return time.Duration(m) * time.Minute }
