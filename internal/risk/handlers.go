package risk

import (
	"math"

	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func isLong(direction strategydef.Direction) bool { return direction == strategydef.Long }

// StopLossPctHandler is a constant stop at entry*(1-p/100) for Long, mirrored
// for Short.
type StopLossPctHandler struct {
	IDPriority int
	Percent    float64
}

func (h *StopLossPctHandler) Name() string  { return "stop_loss_pct" }
func (h *StopLossPctHandler) Priority() int { return h.IDPriority }
func (h *StopLossPctHandler) ValidateBeforeEntry(strategydef.Direction, float64, float64, Series, int) ValidationResult {
	return ValidationResult{Valid: true}
}
func (h *StopLossPctHandler) AuxiliaryIndicatorSpecs() []string { return nil }

func (h *StopLossPctHandler) ComputeStopLevel(direction strategydef.Direction, entryPrice, _, _ float64, currentStop *float64, _ Series, _ int) (float64, bool) {
	if currentStop != nil {
		return *currentStop, true // constant once set
	}
	if isLong(direction) {
		return entryPrice * (1 - h.Percent/100), true
	}
	return entryPrice * (1 + h.Percent/100), true
}

// PercentTrailingStopHandler trails max_high*(1-p/100) for Long, mirrored
// min_low*(1+p/100) for Short.
type PercentTrailingStopHandler struct {
	IDPriority int
	Percent    float64
}

func (h *PercentTrailingStopHandler) Name() string  { return "percent_trailing_stop" }
func (h *PercentTrailingStopHandler) Priority() int { return h.IDPriority }
func (h *PercentTrailingStopHandler) ValidateBeforeEntry(strategydef.Direction, float64, float64, Series, int) ValidationResult {
	return ValidationResult{Valid: true}
}
func (h *PercentTrailingStopHandler) AuxiliaryIndicatorSpecs() []string { return nil }

func (h *PercentTrailingStopHandler) ComputeStopLevel(direction strategydef.Direction, _, maxHigh, minLow float64, _ *float64, _ Series, _ int) (float64, bool) {
	if isLong(direction) {
		return maxHigh * (1 - h.Percent/100), true
	}
	return minLow * (1 + h.Percent/100), true
}

// ATRTrailStopHandler is max_high - k*ATR[i] for Long, min_low + k*ATR[i] for
// Short.
type ATRTrailStopHandler struct {
	IDPriority int
	K          float64
}

func (h *ATRTrailStopHandler) Name() string  { return "atr_trail_stop" }
func (h *ATRTrailStopHandler) Priority() int { return h.IDPriority }
func (h *ATRTrailStopHandler) ValidateBeforeEntry(strategydef.Direction, float64, float64, Series, int) ValidationResult {
	return ValidationResult{Valid: true}
}
func (h *ATRTrailStopHandler) AuxiliaryIndicatorSpecs() []string { return nil }

func (h *ATRTrailStopHandler) ComputeStopLevel(direction strategydef.Direction, _, maxHigh, minLow float64, _ *float64, series Series, index int) (float64, bool) {
	if index >= len(series.ATR) || math.IsNaN(series.ATR[index]) {
		return 0, false
	}
	atr := series.ATR[index]
	if isLong(direction) {
		return maxHigh - h.K*atr, true
	}
	return minLow + h.K*atr, true
}

// HiLoTrailingStopHandler uses MinFor(low, period)[i] for Long (the rolling
// low), mirrored MaxFor(high, period)[i] for Short. The rolling extrema are
// computed directly from series.Low/series.High over the trailing window
// ending at index, rather than from a precomputed column, since the window
// is cheap per-call and this keeps the handler self-sufficient given only
// the OHLC Series any handler already receives.
type HiLoTrailingStopHandler struct {
	IDPriority int
	Period     int
}

func (h *HiLoTrailingStopHandler) Name() string  { return "hi_lo_trailing_stop" }
func (h *HiLoTrailingStopHandler) Priority() int { return h.IDPriority }
func (h *HiLoTrailingStopHandler) ValidateBeforeEntry(strategydef.Direction, float64, float64, Series, int) ValidationResult {
	return ValidationResult{Valid: true}
}
func (h *HiLoTrailingStopHandler) AuxiliaryIndicatorSpecs() []string { return nil }

func (h *HiLoTrailingStopHandler) ComputeStopLevel(direction strategydef.Direction, _, _, _ float64, _ *float64, series Series, index int) (float64, bool) {
	period := h.Period
	if period < 1 {
		period = 14
	}
	start := index - period + 1
	if start < 0 {
		return 0, false
	}
	if isLong(direction) {
		if index >= len(series.Low) {
			return 0, false
		}
		low := series.Low[start]
		for _, v := range series.Low[start : index+1] {
			if math.IsNaN(v) {
				return 0, false
			}
			if v < low {
				low = v
			}
		}
		return low, true
	}
	if index >= len(series.High) {
		return 0, false
	}
	high := series.High[start]
	for _, v := range series.High[start : index+1] {
		if math.IsNaN(v) {
			return 0, false
		}
		if v > high {
			high = v
		}
	}
	return high, true
}

// ATRTrailIndicatorStopHandler is indicator[i] - k*ATR[i] for Long, mirrored
// indicator[i] + k*ATR[i] for Short. The indicator is an explicit alias
//, not a ":indicator" name suffix.
type ATRTrailIndicatorStopHandler struct {
	IDPriority     int
	K              float64
	IndicatorAlias string
}

func (h *ATRTrailIndicatorStopHandler) Name() string  { return "atr_trail_indicator_stop" }
func (h *ATRTrailIndicatorStopHandler) Priority() int { return h.IDPriority }
func (h *ATRTrailIndicatorStopHandler) ValidateBeforeEntry(strategydef.Direction, float64, float64, Series, int) ValidationResult {
	return ValidationResult{Valid: true}
}
func (h *ATRTrailIndicatorStopHandler) AuxiliaryIndicatorSpecs() []string { return []string{h.IndicatorAlias} }

func (h *ATRTrailIndicatorStopHandler) ComputeStopLevel(direction strategydef.Direction, _, _, _ float64, _ *float64, series Series, index int) (float64, bool) {
	if index >= len(series.Indicator) || index >= len(series.ATR) {
		return 0, false
	}
	ind, atr := series.Indicator[index], series.ATR[index]
	if math.IsNaN(ind) || math.IsNaN(atr) {
		return 0, false
	}
	if isLong(direction) {
		return ind - h.K*atr, true
	}
	return ind + h.K*atr, true
}

// PercentTrailIndicatorStopHandler is indicator[i]*(1-p/100) for Long,
// mirrored indicator[i]*(1+p/100) for Short.
type PercentTrailIndicatorStopHandler struct {
	IDPriority     int
	Percent        float64
	IndicatorAlias string
}

func (h *PercentTrailIndicatorStopHandler) Name() string  { return "percent_trail_indicator_stop" }
func (h *PercentTrailIndicatorStopHandler) Priority() int { return h.IDPriority }
func (h *PercentTrailIndicatorStopHandler) ValidateBeforeEntry(strategydef.Direction, float64, float64, Series, int) ValidationResult {
	return ValidationResult{Valid: true}
}
func (h *PercentTrailIndicatorStopHandler) AuxiliaryIndicatorSpecs() []string { return []string{h.IndicatorAlias} }

func (h *PercentTrailIndicatorStopHandler) ComputeStopLevel(direction strategydef.Direction, _, _, _ float64, _ *float64, series Series, index int) (float64, bool) {
	if index >= len(series.Indicator) || math.IsNaN(series.Indicator[index]) {
		return 0, false
	}
	ind := series.Indicator[index]
	if isLong(direction) {
		return ind * (1 - h.Percent/100), true
	}
	return ind * (1 + h.Percent/100), true
}
