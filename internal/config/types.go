// Package config loads the genetic algorithm, discovery/candidate-builder,
// and evaluator configuration from a config file plus environment
// overrides using Viper.
package config

// FileConfig is the raw, file/env-friendly shape Viper unmarshals into:
// plain primitives and strings everywhere the domain Config types use a
// richer value (quote.TimeFrame, time.Duration), translated by the To*
// methods in convert.go.
type FileConfig struct {
	Discovery DiscoveryFileConfig `mapstructure:"discovery"`
	Genetic   GeneticFileConfig   `mapstructure:"genetic"`
	Islands   IslandsFileConfig   `mapstructure:"islands"`
	Evaluator EvaluatorFileConfig `mapstructure:"evaluator"`
}

// DiscoveryFileConfig mirrors discovery.Config.
type DiscoveryFileConfig struct {
	BaseTimeframe             string   `mapstructure:"base_timeframe"`
	AdditionalTimeframes      []string `mapstructure:"additional_timeframes"`
	TimeframeCount            int      `mapstructure:"timeframe_count"`
	MaxIndicatorDepth         int      `mapstructure:"max_indicator_depth"`
	AllowIndicatorOnIndicator bool     `mapstructure:"allow_indicator_on_indicator"`
	MaxOptimizationParams     int      `mapstructure:"max_optimization_params"`
	MaxEntryConditions        int      `mapstructure:"max_entry_conditions"`
	MaxExitConditions         int      `mapstructure:"max_exit_conditions"`
	MaxStopHandlers           int      `mapstructure:"max_stop_handlers"`

	IndicatorPool   []string `mapstructure:"indicator_pool"`
	PriceFields     []string `mapstructure:"price_fields"`
	StopHandlerPool []string `mapstructure:"stop_handler_pool"`
	TakeHandlerPool []string `mapstructure:"take_handler_pool"`

	ProbHigherTimeframeIndicator float64 `mapstructure:"prob_higher_timeframe_indicator"`
	ProbNestedIndicator          float64 `mapstructure:"prob_nested_indicator"`
	ProbExtraCondition           float64 `mapstructure:"prob_extra_condition"`
	ProbExitCondition            float64 `mapstructure:"prob_exit_condition"`
	ProbTakeHandler              float64 `mapstructure:"prob_take_handler"`
	ProbExtraStopHandler         float64 `mapstructure:"prob_extra_stop_handler"`

	MaxBuildAttempts int `mapstructure:"max_build_attempts"`
}

// GeneticFileConfig mirrors genetic.Config field-for-field; every field is
// already a plain primitive, and ToGeneticConfig layers each one that is set
// over genetic.DefaultConfig.
type GeneticFileConfig struct {
	PopulationSize int `mapstructure:"population_size"`
	MaxGenerations int `mapstructure:"max_generations"`

	CrossoverRate  float64 `mapstructure:"crossover_rate"`
	MutationRate   float64 `mapstructure:"mutation_rate"`
	ElitismCount   int     `mapstructure:"elitism_count"`
	TournamentSize int     `mapstructure:"tournament_size"`

	FreshBloodInterval int     `mapstructure:"fresh_blood_interval"`
	FreshBloodRate     float64 `mapstructure:"fresh_blood_rate"`

	DetectDuplicates bool `mapstructure:"detect_duplicates"`

	RestartOnStagnation bool    `mapstructure:"restart_on_stagnation"`
	StagnationWindow    int     `mapstructure:"stagnation_window"`
	StagnationEpsilon   float64 `mapstructure:"stagnation_epsilon"`

	MinEntryConditions int `mapstructure:"min_entry_conditions"`

	WeightedCrossoverGapThreshold float64 `mapstructure:"weighted_crossover_gap_threshold"`
}

// IslandsFileConfig mirrors islands.Config field-for-field.
type IslandsFileConfig struct {
	IslandsCount      int     `mapstructure:"islands_count"`
	MigrationInterval int     `mapstructure:"migration_interval"`
	MigrationRate     float64 `mapstructure:"migration_rate"`

	EnableSDS        bool    `mapstructure:"enable_sds"`
	SDSTestThreshold float64 `mapstructure:"sds_test_threshold"`
}

// BacktestFileConfig mirrors backtest.Config.
type BacktestFileConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	InitialCapital  float64 `mapstructure:"initial_capital"`
	UseFullCapital  bool    `mapstructure:"use_full_capital"`
	ReinvestProfits bool    `mapstructure:"reinvest_profits"`
}

// FitnessWeightsFileConfig mirrors fitness.Weights.
type FitnessWeightsFileConfig struct {
	Sharpe float64 `mapstructure:"sharpe"`
	PF     float64 `mapstructure:"pf"`
	Win    float64 `mapstructure:"win"`
	CAGR   float64 `mapstructure:"cagr"`
	DD     float64 `mapstructure:"dd"`
	TC     float64 `mapstructure:"tc"`
}

// FitnessThresholdsFileConfig mirrors fitness.Thresholds; a nil pointer
// left unset in the file/env means that bound passes trivially, exactly as
// fitness.PassesThresholds already treats a nil Thresholds field.
type FitnessThresholdsFileConfig struct {
	MinSharpeRatio  *float64 `mapstructure:"min_sharpe_ratio"`
	MinProfitFactor *float64 `mapstructure:"min_profit_factor"`
	MinWinRate      *float64 `mapstructure:"min_win_rate"`
	MinCAGR         *float64 `mapstructure:"min_cagr"`
	MaxDrawdownPct  *float64 `mapstructure:"max_drawdown_pct"`
	MinTrades       *int     `mapstructure:"min_trades"`
}

// EvaluatorFileConfig mirrors evaluator.Config.
type EvaluatorFileConfig struct {
	MaxConcurrentEvaluations int    `mapstructure:"max_concurrent_evaluations"`
	CandidateTimeout         string `mapstructure:"candidate_timeout"`

	CacheEnabled  bool   `mapstructure:"cache_enabled"`
	CacheCapacity int    `mapstructure:"cache_capacity"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisTTL      string `mapstructure:"redis_ttl"`

	BreakerName                string  `mapstructure:"breaker_name"`
	BreakerConsecutiveFailures uint32  `mapstructure:"breaker_consecutive_failures"`
	BreakerFailureRatio        float64 `mapstructure:"breaker_failure_ratio"`
	BreakerMinRequests         uint32  `mapstructure:"breaker_min_requests"`
	BreakerInterval            string  `mapstructure:"breaker_interval"`
	BreakerTimeout             string  `mapstructure:"breaker_timeout"`

	Backtest          BacktestFileConfig          `mapstructure:"backtest"`
	BarMinutes        int64                       `mapstructure:"bar_minutes"`
	FitnessWeights    FitnessWeightsFileConfig    `mapstructure:"fitness_weights"`
	FitnessThresholds FitnessThresholdsFileConfig `mapstructure:"fitness_thresholds"`
}
