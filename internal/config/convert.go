package config

import (
	"time"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/evaluator"
	"github.com/atlas-desktop/strategyforge/internal/fitness"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
	"github.com/atlas-desktop/strategyforge/internal/islands"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// Config is the fully-translated set of domain configs a forge run needs:
// the richer quote.TimeFrame/time.Duration shapes the FileConfig only holds
// as strings, built once at startup by Load/FromFile.
type Config struct {
	Discovery discovery.Config
	Genetic   genetic.Config
	Islands   islands.Config
	Evaluator evaluator.Config
}

// parseTimeframes converts a base timeframe string plus zero or more
// additional ones, skipping entries that fail to parse rather than aborting
// the whole load. An unparsable additional timeframe just never gets
// drawn by the builder, mirroring discovery's "orphan aliases are pruned"
// tolerance for malformed input.
func parseTimeframes(base string, extra []string) (quote.TimeFrame, []quote.TimeFrame, error) {
	baseTF, err := quote.ParseTimeFrame(base)
	if err != nil {
		return quote.TimeFrame{}, nil, newError("parseTimeframes", "base_timeframe %q: %v", base, err)
	}
	out := make([]quote.TimeFrame, 0, len(extra))
	for _, e := range extra {
		tf, err := quote.ParseTimeFrame(e)
		if err != nil {
			continue
		}
		out = append(out, tf)
	}
	return baseTF, out, nil
}

// ToDiscoveryConfig translates the file-friendly DiscoveryFileConfig into
// discovery.Config, filling any zero-valued field from discovery.DefaultConfig
// so a partially-specified file only overrides what it names.
func (fc FileConfig) ToDiscoveryConfig() (discovery.Config, error) {
	def := discovery.DefaultConfig()
	d := fc.Discovery

	if d.BaseTimeframe != "" {
		base, extra, err := parseTimeframes(d.BaseTimeframe, d.AdditionalTimeframes)
		if err != nil {
			return discovery.Config{}, newError("ToDiscoveryConfig", "%v", err)
		}
		def.BaseTimeframe = base
		def.AdditionalTimeframes = extra
	}
	if d.TimeframeCount > 0 {
		def.TimeframeCount = d.TimeframeCount
	}
	if d.MaxIndicatorDepth > 0 {
		def.MaxIndicatorDepth = d.MaxIndicatorDepth
	}
	def.AllowIndicatorOnIndicator = d.AllowIndicatorOnIndicator || def.AllowIndicatorOnIndicator
	if d.MaxOptimizationParams > 0 {
		def.MaxOptimizationParams = d.MaxOptimizationParams
	}
	if d.MaxEntryConditions > 0 {
		def.MaxEntryConditions = d.MaxEntryConditions
	}
	if d.MaxExitConditions > 0 {
		def.MaxExitConditions = d.MaxExitConditions
	}
	if d.MaxStopHandlers > 0 {
		def.MaxStopHandlers = d.MaxStopHandlers
	}
	if len(d.IndicatorPool) > 0 {
		def.IndicatorPool = d.IndicatorPool
	}
	if len(d.PriceFields) > 0 {
		def.PriceFields = d.PriceFields
	}
	if len(d.StopHandlerPool) > 0 {
		def.StopHandlerPool = d.StopHandlerPool
	}
	if len(d.TakeHandlerPool) > 0 {
		def.TakeHandlerPool = d.TakeHandlerPool
	}
	setFraction(&def.ProbHigherTimeframeIndicator, d.ProbHigherTimeframeIndicator)
	setFraction(&def.ProbNestedIndicator, d.ProbNestedIndicator)
	setFraction(&def.ProbExtraCondition, d.ProbExtraCondition)
	setFraction(&def.ProbExitCondition, d.ProbExitCondition)
	setFraction(&def.ProbTakeHandler, d.ProbTakeHandler)
	setFraction(&def.ProbExtraStopHandler, d.ProbExtraStopHandler)
	if d.MaxBuildAttempts > 0 {
		def.MaxBuildAttempts = d.MaxBuildAttempts
	}
	return def, nil
}

// setFraction overwrites *dst with v when v is nonzero, leaving the default
// in place otherwise (a FileConfig probability of exactly 0.0 that was
// genuinely meant reads identically to "unset"; acceptable here since none
// of the builder's probabilities are meaningfully configured to exactly
// zero in practice; a caller that needs true zero sets a tiny epsilon).
func setFraction(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// ToGeneticConfig translates GeneticFileConfig into genetic.Config, layered
// over genetic.DefaultConfig.
func (fc FileConfig) ToGeneticConfig() genetic.Config {
	def := genetic.DefaultConfig()
	g := fc.Genetic
	if g.PopulationSize > 0 {
		def.PopulationSize = g.PopulationSize
	}
	if g.MaxGenerations > 0 {
		def.MaxGenerations = g.MaxGenerations
	}
	setFraction(&def.CrossoverRate, g.CrossoverRate)
	setFraction(&def.MutationRate, g.MutationRate)
	if g.ElitismCount > 0 {
		def.ElitismCount = g.ElitismCount
	}
	if g.TournamentSize > 0 {
		def.TournamentSize = g.TournamentSize
	}
	if g.FreshBloodInterval > 0 {
		def.FreshBloodInterval = g.FreshBloodInterval
	}
	setFraction(&def.FreshBloodRate, g.FreshBloodRate)
	def.DetectDuplicates = g.DetectDuplicates || def.DetectDuplicates
	def.RestartOnStagnation = g.RestartOnStagnation || def.RestartOnStagnation
	if g.StagnationWindow > 0 {
		def.StagnationWindow = g.StagnationWindow
	}
	setFraction(&def.StagnationEpsilon, g.StagnationEpsilon)
	if g.MinEntryConditions > 0 {
		def.MinEntryConditions = g.MinEntryConditions
	}
	setFraction(&def.WeightedCrossoverGapThreshold, g.WeightedCrossoverGapThreshold)
	return def
}

// ToIslandsConfig translates IslandsFileConfig into islands.Config, layered
// over islands.DefaultConfig.
func (fc FileConfig) ToIslandsConfig() islands.Config {
	def := islands.DefaultConfig()
	i := fc.Islands
	if i.IslandsCount > 0 {
		def.IslandsCount = i.IslandsCount
	}
	if i.MigrationInterval > 0 {
		def.MigrationInterval = i.MigrationInterval
	}
	setFraction(&def.MigrationRate, i.MigrationRate)
	def.EnableSDS = i.EnableSDS || def.EnableSDS
	setFraction(&def.SDSTestThreshold, i.SDSTestThreshold)
	return def
}

// ToEvaluatorConfig translates EvaluatorFileConfig into evaluator.Config,
// layered over evaluator.DefaultConfig. Durations given as strings
// ("30s", "5m") are parsed with time.ParseDuration; an empty or unparsable
// string leaves the default in place.
func (fc FileConfig) ToEvaluatorConfig() evaluator.Config {
	def := evaluator.DefaultConfig()
	e := fc.Evaluator

	if e.MaxConcurrentEvaluations > 0 {
		def.MaxConcurrentEvaluations = e.MaxConcurrentEvaluations
	}
	setDuration(&def.CandidateTimeout, e.CandidateTimeout)

	def.CacheEnabled = e.CacheEnabled || def.CacheEnabled
	if e.CacheCapacity > 0 {
		def.CacheCapacity = e.CacheCapacity
	}
	if e.RedisAddr != "" {
		def.RedisAddr = e.RedisAddr
	}
	setDuration(&def.RedisTTL, e.RedisTTL)

	if e.BreakerName != "" {
		def.BreakerName = e.BreakerName
	}
	if e.BreakerConsecutiveFailures > 0 {
		def.BreakerConsecutiveFailures = e.BreakerConsecutiveFailures
	}
	setFraction(&def.BreakerFailureRatio, e.BreakerFailureRatio)
	if e.BreakerMinRequests > 0 {
		def.BreakerMinRequests = e.BreakerMinRequests
	}
	setDuration(&def.BreakerInterval, e.BreakerInterval)
	setDuration(&def.BreakerTimeout, e.BreakerTimeout)

	if e.Backtest.Symbol != "" {
		def.BacktestConfig.Symbol = e.Backtest.Symbol
	}
	if e.Backtest.InitialCapital > 0 {
		def.BacktestConfig.InitialCapital = e.Backtest.InitialCapital
	}
	def.BacktestConfig.UseFullCapital = e.Backtest.UseFullCapital || def.BacktestConfig.UseFullCapital
	def.BacktestConfig.ReinvestProfits = e.Backtest.ReinvestProfits || def.BacktestConfig.ReinvestProfits

	if e.BarMinutes > 0 {
		def.BarMinutes = e.BarMinutes
	}

	w := e.FitnessWeights
	setFraction(&def.FitnessWeights.Sharpe, w.Sharpe)
	setFraction(&def.FitnessWeights.PF, w.PF)
	setFraction(&def.FitnessWeights.Win, w.Win)
	setFraction(&def.FitnessWeights.CAGR, w.CAGR)
	setFraction(&def.FitnessWeights.DD, w.DD)
	setFraction(&def.FitnessWeights.TC, w.TC)

	def.FitnessThresholds = toThresholds(e.FitnessThresholds)

	return def
}

func toThresholds(t FitnessThresholdsFileConfig) fitness.Thresholds {
	return fitness.Thresholds{
		MinSharpeRatio:  t.MinSharpeRatio,
		MinProfitFactor: t.MinProfitFactor,
		MinWinRate:      t.MinWinRate,
		MinCAGR:         t.MinCAGR,
		MaxDrawdownPct:  t.MaxDrawdownPct,
		MinTrades:       t.MinTrades,
	}
}

func setDuration(dst *time.Duration, s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*dst = d
	}
}

// ToConfig translates the whole FileConfig in one call.
func (fc FileConfig) ToConfig() (Config, error) {
	disc, err := fc.ToDiscoveryConfig()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Discovery: disc,
		Genetic:   fc.ToGeneticConfig(),
		Islands:   fc.ToIslandsConfig(),
		Evaluator: fc.ToEvaluatorConfig(),
	}, nil
}
