package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/internal/candleio"
	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/evaluator"
	"github.com/atlas-desktop/strategyforge/internal/fitness"
	"github.com/atlas-desktop/strategyforge/internal/backtest"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// newRunCmd builds the smoke-test verb: draw one candidate from the
// candidate builder and run it through a single backtest, printing its
// metrics and fitness without touching the genetic algorithm at all. This
// validates config and candle data end to end before committing to a full
// evolve run.
func newRunCmd() *cobra.Command {
	var (
		dataDir    string
		symbolFlag string
		venueFlag  string
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest one freshly drawn candidate strategy and print its metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogger(flagLogLevel, flagLogFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx := context.Background()
			symbol := quote.Symbol{Ticker: symbolFlag, Venue: venueFlag}
			tfs := append([]quote.TimeFrame{cfg.Discovery.BaseTimeframe}, cfg.Discovery.AdditionalTimeframes...)

			loader := candleio.NewFileStore(logger, dataDir)
			frames, err := candleio.LoadAll(ctx, loader, symbol, tfs, time.Time{}, time.Time{})
			if err != nil {
				return fmt.Errorf("loading candles: %w", err)
			}

			builder := discovery.NewBuilder(cfg.Discovery)
			rng := rand.New(rand.NewSource(seed))
			cand, err := builder.Build(rng)
			if err != nil {
				return fmt.Errorf("drawing candidate: %w", err)
			}

			prepared, err := strategydef.Prepare(cand.Definition)
			if err != nil {
				return fmt.Errorf("preparing strategy: %w", err)
			}
			exec, err := backtest.NewExecutor(cfg.Evaluator.BacktestConfig, prepared)
			if err != nil {
				return fmt.Errorf("building executor: %w", err)
			}
			report, err := exec.Run(ctx, frames)
			if err != nil {
				return fmt.Errorf("running backtest: %w", err)
			}

			metrics := fitness.Calculate(report, cfg.Evaluator.BarMinutes)
			score := fitness.Score(metrics, cfg.Evaluator.FitnessWeights)

			logger.Info("backtest complete",
				zap.String("candidate_id", cand.ID),
				zap.String("signature", cand.Signature),
				zap.Int("trades", len(report.Trades)),
				zap.Float64("sharpe", metrics.SharpeRatio),
				zap.Float64("profit_factor", metrics.ProfitFactor),
				zap.Float64("win_rate", metrics.WinningPercentage),
				zap.Float64("cagr", metrics.CAGR),
				zap.Float64("max_drawdown_pct", metrics.DrawdownPercent),
				zap.Float64("fitness", score))

			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory of <ticker>_<timeframe>.json candle files")
	cmd.Flags().StringVar(&symbolFlag, "symbol", "", "ticker to backtest against")
	cmd.Flags().StringVar(&venueFlag, "venue", "", "venue qualifier for the symbol, if any")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for the candidate draw")
	cmd.MarkFlagRequired("symbol")

	return cmd
}
