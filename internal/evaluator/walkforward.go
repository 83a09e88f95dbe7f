package evaluator

import (
	"context"
	"math"
	"time"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// WalkForwardConfig configures the in/out-of-sample fold split: number of
// folds, in-sample percentage, and whether the in-sample window is
// anchored or rolling.
type WalkForwardConfig struct {
	Folds       int
	InSamplePct float64
	Anchored    bool
}

// WalkForwardFold reports one fold's in-sample/out-of-sample fitness and
// the resulting degradation, mirroring optimization.WalkForwardFold.
type WalkForwardFold struct {
	FoldNumber     int
	InSampleStart  time.Time
	InSampleEnd    time.Time
	OutSampleStart time.Time
	OutSampleEnd   time.Time
	InSampleScore  float64
	OutSampleScore float64
	Degradation    float64
}

// WalkForwardResult summarizes a candidate's consistency across folds.
type WalkForwardResult struct {
	Folds              []WalkForwardFold
	AverageInSample    float64
	AverageOutOfSample float64
	Degradation        float64
}

// WalkForward re-evaluates one candidate over successive in-sample/
// out-of-sample slices of the evaluator's frames. Anchored folds
// use an expanding in-sample window from the start of the data; rolling
// folds use a fixed-width window that slides forward each fold.
func (e *Evaluator) WalkForward(ctx context.Context, cand *discovery.Candidate, wcfg WalkForwardConfig) (*WalkForwardResult, error) {
	if wcfg.Folds < 1 {
		wcfg.Folds = 1
	}

	start, end, ok := e.frameBounds()
	if !ok {
		return nil, newError("WalkForward", "no frames to evaluate against")
	}

	total := end.Sub(start)
	foldDuration := total / time.Duration(wcfg.Folds)
	inSampleDuration := time.Duration(float64(foldDuration) * wcfg.InSamplePct)
	outSampleDuration := foldDuration - inSampleDuration

	result := &WalkForwardResult{Folds: make([]WalkForwardFold, 0, wcfg.Folds)}
	var totalIS, totalOOS float64

	for fold := 0; fold < wcfg.Folds; fold++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var isStart, isEnd, oosStart, oosEnd time.Time
		if wcfg.Anchored {
			isStart = start
			isEnd = start.Add(time.Duration(fold+1) * inSampleDuration)
			oosStart = isEnd
			oosEnd = oosStart.Add(outSampleDuration)
		} else {
			foldStart := start.Add(time.Duration(fold) * foldDuration)
			isStart = foldStart
			isEnd = foldStart.Add(inSampleDuration)
			oosStart = isEnd
			oosEnd = foldStart.Add(foldDuration)
		}
		if oosEnd.After(end) {
			oosEnd = end
		}

		isScore, err := e.scoreOverRange(ctx, cand, isStart, isEnd)
		if err != nil {
			return nil, newError("WalkForward", "fold %d in-sample: %v", fold+1, err)
		}
		oosScore, err := e.scoreOverRange(ctx, cand, oosStart, oosEnd)
		if err != nil {
			return nil, newError("WalkForward", "fold %d out-of-sample: %v", fold+1, err)
		}

		degradation := 0.0
		if isScore != 0 {
			degradation = (isScore - oosScore) / math.Abs(isScore)
		}

		result.Folds = append(result.Folds, WalkForwardFold{
			FoldNumber:     fold + 1,
			InSampleStart:  isStart,
			InSampleEnd:    isEnd,
			OutSampleStart: oosStart,
			OutSampleEnd:   oosEnd,
			InSampleScore:  isScore,
			OutSampleScore: oosScore,
			Degradation:    degradation,
		})
		totalIS += isScore
		totalOOS += oosScore
	}

	result.AverageInSample = totalIS / float64(wcfg.Folds)
	result.AverageOutOfSample = totalOOS / float64(wcfg.Folds)
	if result.AverageInSample != 0 {
		result.Degradation = (result.AverageInSample - result.AverageOutOfSample) / math.Abs(result.AverageInSample)
	}
	return result, nil
}

// frameBounds returns the earliest/latest timestamp across all frames.
func (e *Evaluator) frameBounds() (time.Time, time.Time, bool) {
	var start, end time.Time
	found := false
	for _, f := range e.frames {
		if f.Len() == 0 {
			continue
		}
		qs := f.Quotes()
		first, last := qs[0].Timestamp, qs[len(qs)-1].Timestamp
		if !found || first.Before(start) {
			start = first
		}
		if !found || last.After(end) {
			end = last
		}
		found = true
	}
	return start, end, found
}

// scoreOverRange slices every frame to [from, to) and scores the candidate
// against the slice, without touching the evaluator's cache (fold slices
// share a structural signature with the full-range candidate, so caching
// them would corrupt full-range lookups).
func (e *Evaluator) scoreOverRange(ctx context.Context, cand *discovery.Candidate, from, to time.Time) (float64, error) {
	sliced := make(map[string]*quote.QuoteFrame, len(e.frames))
	for key, f := range e.frames {
		lo := f.IndexAtOrBefore(from)
		if lo < 0 {
			lo = 0
		}
		hi := f.IndexBefore(to)
		if hi < lo {
			continue
		}
		quotes := f.Quotes()[lo : hi+1]
		if len(quotes) == 0 {
			continue
		}
		slice, err := quote.NewQuoteFrame(f.Symbol(), f.Timeframe(), quotes)
		if err != nil {
			return 0, err
		}
		sliced[key] = slice
	}
	if len(sliced) == 0 {
		return 0, newError("scoreOverRange", "no bars in range %s..%s", from, to)
	}

	scratch := &Evaluator{cfg: e.cfg, logger: e.logger, frames: sliced, breaker: e.breaker}
	return scratch.scoreCandidate(ctx, cand.Definition)
}
