package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeFrameMetadata records how an AggregatedQuoteFrame was derived.
type TimeFrameMetadata struct {
	SourceTF  TimeFrame
	TargetTF  TimeFrame
	Ratio     int64
	CreatedAt time.Time
}

// AggregatedQuoteFrame wraps a target-timeframe QuoteFrame built by
// aggregating a source frame, plus the per-bar mapping back to the
// contributing source indices.
type AggregatedQuoteFrame struct {
	Frame         *QuoteFrame
	Meta          TimeFrameMetadata
	SourceIndices [][]int
	// Partial marks an aggregated bar whose bucket had fewer than Ratio
	// contributing source bars: the final bucket when the source ends
	// mid-bucket, and any bucket the source starts partway into or has
	// missing bars in. Emitted
	// rather than dropped; callers filter it out explicitly if they need
	// whole buckets only.
	Partial []bool
}

// Aggregate scans a source frame and bucket-flushes it into targetTF: align
// each bar's timestamp to floor(ts_min/target_min) * target_min, then flush
// O=first, H=max, L=min, C=last, V=sum whenever the bucket changes.
func Aggregate(source *QuoteFrame, targetTF TimeFrame) (*AggregatedQuoteFrame, error) {
	if targetTF.IsCustom() {
		return nil, ErrUnsupportedTimeFrame
	}
	sourceMinutes, ok := source.Timeframe().AsMinutes()
	if !ok {
		return nil, ErrUnsupportedTimeFrame
	}
	targetMinutes, ok := targetTF.AsMinutes()
	if !ok {
		return nil, ErrUnsupportedTimeFrame
	}
	if targetMinutes < sourceMinutes || targetMinutes%sourceMinutes != 0 {
		return nil, newFeedError("Aggregate",
			"target timeframe %s is not an integer multiple of source %s", targetTF, source.Timeframe())
	}
	ratio := targetMinutes / sourceMinutes

	if source.Len() == 0 {
		frame, _ := NewQuoteFrame(source.Symbol(), targetTF, nil)
		return &AggregatedQuoteFrame{
			Frame: frame,
			Meta: TimeFrameMetadata{
				SourceTF:  source.Timeframe(),
				TargetTF:  targetTF,
				Ratio:     ratio,
				CreatedAt: time.Now().UTC(),
			},
		}, nil
	}

	targetDur := time.Duration(targetMinutes) * time.Minute

	var (
		out           []Quote
		sourceIdxList [][]int
		partial       []bool

		bucketStart time.Time
		bucketIdx   []int
		haveBucket  bool
	)

	flush := func() {
		if !haveBucket || len(bucketIdx) == 0 {
			return
		}
		first := source.Quote(bucketIdx[0])
		q := Quote{
			Symbol:    source.Symbol(),
			Timeframe: targetTF,
			Timestamp: bucketStart,
			Open:      first.Open,
			High:      first.High,
			Low:       first.Low,
			Close:     source.Quote(bucketIdx[len(bucketIdx)-1]).Close,
			Volume:    decimal.Zero,
		}
		for _, idx := range bucketIdx {
			bar := source.Quote(idx)
			if bar.High.GreaterThan(q.High) {
				q.High = bar.High
			}
			if bar.Low.LessThan(q.Low) {
				q.Low = bar.Low
			}
			q.Volume = q.Volume.Add(bar.Volume)
		}
		out = append(out, q)
		indices := make([]int, len(bucketIdx))
		copy(indices, bucketIdx)
		sourceIdxList = append(sourceIdxList, indices)
		partial = append(partial, int64(len(bucketIdx)) < ratio)
	}

	for i := 0; i < source.Len(); i++ {
		ts := source.Timestamps()[i]
		aligned := alignToBucket(ts, targetDur)
		if !haveBucket || !aligned.Equal(bucketStart) {
			flush()
			bucketStart = aligned
			bucketIdx = bucketIdx[:0]
			haveBucket = true
		}
		bucketIdx = append(bucketIdx, i)
	}
	flush()

	frame, err := NewQuoteFrame(source.Symbol(), targetTF, out)
	if err != nil {
		return nil, err
	}

	return &AggregatedQuoteFrame{
		Frame:         frame,
		SourceIndices: sourceIdxList,
		Partial:       partial,
		Meta: TimeFrameMetadata{
			SourceTF:  source.Timeframe(),
			TargetTF:  targetTF,
			Ratio:     ratio,
			CreatedAt: time.Now().UTC(),
		},
	}, nil
}

func alignToBucket(ts time.Time, bucket time.Duration) time.Time {
	unix := ts.Unix()
	bucketSecs := int64(bucket.Seconds())
	floored := (unix / bucketSecs) * bucketSecs
	return time.Unix(floored, 0).UTC()
}
