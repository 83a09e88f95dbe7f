package risk_test

import (
	"testing"

	"github.com/atlas-desktop/strategyforge/internal/risk"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func TestStopLossPctConstantForLong(t *testing.T) {
	h := &risk.StopLossPctHandler{Percent: 5}
	level, ok := h.ComputeStopLevel(strategydef.Long, 100, 100, 100, nil, risk.Series{}, 0)
	if !ok || level != 95 {
		t.Fatalf("expected stop 95, got %v ok=%v", level, ok)
	}
	// Once set, the level is constant regardless of subsequent extrema.
	fixed := 95.0
	level, ok = h.ComputeStopLevel(strategydef.Long, 100, 120, 100, &fixed, risk.Series{}, 1)
	if !ok || level != 95 {
		t.Fatalf("expected constant stop 95, got %v", level)
	}
}

func TestStopLossPctMirrorsForShort(t *testing.T) {
	h := &risk.StopLossPctHandler{Percent: 5}
	level, ok := h.ComputeStopLevel(strategydef.Short, 100, 100, 100, nil, risk.Series{}, 0)
	if !ok || level != 105 {
		t.Fatalf("expected stop 105, got %v", level)
	}
}

func TestPercentTrailingStopTracksExtrema(t *testing.T) {
	h := &risk.PercentTrailingStopHandler{Percent: 10}
	level, ok := h.ComputeStopLevel(strategydef.Long, 100, 150, 100, nil, risk.Series{}, 0)
	if !ok || level != 135 {
		t.Fatalf("expected 135, got %v", level)
	}
}

func TestATRTrailStopUsesATRColumn(t *testing.T) {
	h := &risk.ATRTrailStopHandler{K: 2}
	series := risk.Series{ATR: []float64{2.5}}
	level, ok := h.ComputeStopLevel(strategydef.Long, 100, 110, 90, nil, series, 0)
	if !ok || level != 105 {
		t.Fatalf("expected 110-2*2.5=105, got %v", level)
	}
	if _, ok := h.ComputeStopLevel(strategydef.Long, 100, 110, 90, nil, risk.Series{}, 5); ok {
		t.Fatal("expected ok=false when ATR index is out of range")
	}
}

func TestATRTrailIndicatorStopRequiresBothSeries(t *testing.T) {
	h := &risk.ATRTrailIndicatorStopHandler{K: 1, IndicatorAlias: "supertrend"}
	specs := h.AuxiliaryIndicatorSpecs()
	if len(specs) != 1 || specs[0] != "supertrend" {
		t.Fatalf("expected [supertrend], got %v", specs)
	}
	series := risk.Series{ATR: []float64{1.0}, Indicator: []float64{50}}
	level, ok := h.ComputeStopLevel(strategydef.Long, 0, 0, 0, nil, series, 0)
	if !ok || level != 49 {
		t.Fatalf("expected 50-1*1=49, got %v", level)
	}
	level, ok = h.ComputeStopLevel(strategydef.Short, 0, 0, 0, nil, series, 0)
	if !ok || level != 51 {
		t.Fatalf("expected 51 for short, got %v", level)
	}
}

func TestHiLoTrailingStopTracksRollingWindow(t *testing.T) {
	h := &risk.HiLoTrailingStopHandler{Period: 3}
	series := risk.Series{Low: []float64{10, 8, 9, 7, 12}, High: []float64{15, 16, 14, 18, 13}}

	if _, ok := h.ComputeStopLevel(strategydef.Long, 0, 0, 0, nil, series, 1); ok {
		t.Fatal("expected ok=false before a full window is available")
	}
	level, ok := h.ComputeStopLevel(strategydef.Long, 0, 0, 0, nil, series, 3)
	if !ok || level != 7 {
		t.Fatalf("expected rolling low 7 over window [1,3], got %v ok=%v", level, ok)
	}
	level, ok = h.ComputeStopLevel(strategydef.Short, 0, 0, 0, nil, series, 3)
	if !ok || level != 18 {
		t.Fatalf("expected rolling high 18 over window [1,3], got %v ok=%v", level, ok)
	}
}

func TestManagerSelectsTightestSafeLevelLong(t *testing.T) {
	loose := &risk.StopLossPctHandler{IDPriority: 1, Percent: 20} // 80
	tight := &risk.PercentTrailingStopHandler{IDPriority: 2, Percent: 5} // maxHigh*0.95
	mgr := risk.NewManager([]risk.Handler{loose, tight})

	state := risk.NewPositionRiskState(strategydef.Long, 100, 100, 100)
	state.OnNewBar(120, 95) // maxHigh=120 -> tight handler proposes 114
	noSeries := func(string) risk.Series { return risk.Series{} }

	ok := mgr.UpdateStop(state, 1, noSeries, 0)
	if !ok {
		t.Fatal("expected UpdateStop to succeed")
	}
	if state.CurrentStop == nil || *state.CurrentStop != 114 {
		t.Fatalf("expected tightest-safe stop 114, got %v", state.CurrentStop)
	}

	// Stop must never loosen: a worse bar should not move it down.
	state.OnNewBar(110, 90)
	mgr.UpdateStop(state, 2, noSeries, 1)
	if *state.CurrentStop < 114 {
		t.Fatalf("expected stop to never loosen below 114, got %v", *state.CurrentStop)
	}
}

func TestManagerSelectsTightestSafeLevelShort(t *testing.T) {
	loose := &risk.StopLossPctHandler{IDPriority: 1, Percent: 20} // entry*1.2=120
	tight := &risk.PercentTrailingStopHandler{IDPriority: 2, Percent: 5} // minLow*1.05
	mgr := risk.NewManager([]risk.Handler{loose, tight})

	state := risk.NewPositionRiskState(strategydef.Short, 100, 100, 100)
	state.OnNewBar(105, 80) // minLow=80 -> tight handler proposes 84
	noSeries := func(string) risk.Series { return risk.Series{} }

	mgr.UpdateStop(state, 1, noSeries, 0)
	if state.CurrentStop == nil || *state.CurrentStop != 84 {
		t.Fatalf("expected tightest-safe stop 84, got %v", state.CurrentStop)
	}
}

func TestCheckTriggerLongFillsAtMoreConservativePrice(t *testing.T) {
	state := risk.NewPositionRiskState(strategydef.Long, 100, 100, 100)
	stop := 95.0
	state.CurrentStop = &stop

	triggered, exit := risk.CheckTrigger(state, 96, 97, 93)
	if !triggered || exit != 95 {
		t.Fatalf("expected trigger at min(open,stop)=95, got triggered=%v exit=%v", triggered, exit)
	}

	// Gap below the stop: fill at the open, not the stop.
	gapStop := 95.0
	state.CurrentStop = &gapStop
	triggered, exit = risk.CheckTrigger(state, 90, 91, 85)
	if !triggered || exit != 90 {
		t.Fatalf("expected gap fill at open=90, got %v", exit)
	}
}

func TestCheckTriggerShortMirrors(t *testing.T) {
	state := risk.NewPositionRiskState(strategydef.Short, 100, 100, 100)
	stop := 105.0
	state.CurrentStop = &stop

	triggered, exit := risk.CheckTrigger(state, 104, 107, 102)
	if !triggered || exit != 105 {
		t.Fatalf("expected trigger at max(open,stop)=105, got triggered=%v exit=%v", triggered, exit)
	}
}

func TestCheckTriggerNoStopYet(t *testing.T) {
	state := risk.NewPositionRiskState(strategydef.Long, 100, 100, 100)
	triggered, _ := risk.CheckTrigger(state, 100, 101, 99)
	if triggered {
		t.Fatal("expected no trigger before any stop is set")
	}
}

func TestManagerValidateEntryStopsAtFirstFailure(t *testing.T) {
	pass := &alwaysValid{priority: 1}
	fail := &alwaysInvalid{priority: 2, reason: "volatility too high"}
	mgr := risk.NewManager([]risk.Handler{fail, pass})

	res := mgr.ValidateEntry(strategydef.Long, 100, 100, func(string) risk.Series { return risk.Series{} }, 0)
	if res.Valid || res.Reason != "volatility too high" {
		t.Fatalf("expected rejection from fail handler, got %+v", res)
	}
}

func TestManagerRequiredAuxiliaryIndicatorsDeduped(t *testing.T) {
	a := &risk.ATRTrailIndicatorStopHandler{IndicatorAlias: "supertrend"}
	b := &risk.PercentTrailIndicatorStopHandler{IndicatorAlias: "supertrend"}
	mgr := risk.NewManager([]risk.Handler{a, b})
	specs := mgr.RequiredAuxiliaryIndicators()
	if len(specs) != 1 || specs[0] != "supertrend" {
		t.Fatalf("expected deduped [supertrend], got %v", specs)
	}
}

func TestNewHandlerUnknownName(t *testing.T) {
	if _, err := risk.NewHandler(strategydef.HandlerSpec{HandlerName: "nonexistent"}); err == nil {
		t.Fatal("expected error for unknown handler name")
	}
}

func TestNewHandlerBuildsFromSpec(t *testing.T) {
	h, err := risk.NewHandler(strategydef.HandlerSpec{
		HandlerName: "atr_trail_stop",
		Priority:    3,
		Parameters:  map[string]float64{"k": 2.5},
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if h.Priority() != 3 {
		t.Fatalf("expected priority 3, got %d", h.Priority())
	}
}

// alwaysValid/alwaysInvalid are minimal test doubles for Manager priority
// ordering, independent of any built-in handler's math.
type alwaysValid struct{ priority int }

func (h *alwaysValid) Name() string  { return "always_valid" }
func (h *alwaysValid) Priority() int { return h.priority }
func (h *alwaysValid) ValidateBeforeEntry(strategydef.Direction, float64, float64, risk.Series, int) risk.ValidationResult {
	return risk.ValidationResult{Valid: true}
}
func (h *alwaysValid) ComputeStopLevel(strategydef.Direction, float64, float64, float64, *float64, risk.Series, int) (float64, bool) {
	return 0, false
}
func (h *alwaysValid) AuxiliaryIndicatorSpecs() []string { return nil }

type alwaysInvalid struct {
	priority int
	reason   string
}

func (h *alwaysInvalid) Name() string  { return "always_invalid" }
func (h *alwaysInvalid) Priority() int { return h.priority }
func (h *alwaysInvalid) ValidateBeforeEntry(strategydef.Direction, float64, float64, risk.Series, int) risk.ValidationResult {
	return risk.ValidationResult{Valid: false, Reason: h.reason}
}
func (h *alwaysInvalid) ComputeStopLevel(strategydef.Direction, float64, float64, float64, *float64, risk.Series, int) (float64, bool) {
	return 0, false
}
func (h *alwaysInvalid) AuxiliaryIndicatorSpecs() []string { return nil }
