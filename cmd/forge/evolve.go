package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/internal/candleio"
	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/evaluator"
	"github.com/atlas-desktop/strategyforge/internal/ga_metrics"
	"github.com/atlas-desktop/strategyforge/internal/islands"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// candidateSummary is what forge evolve exports and forge report reads
// back: deliberately just the ranking triple, not the full
// strategydef.StrategyDefinition. A candidate's structural signature is
// enough to identify it within one run's population, and reconstructing
// the full definition from a signature alone is not needed for reporting.
type candidateSummary struct {
	Rank      int     `json:"rank"`
	ID        string  `json:"id"`
	Signature string  `json:"signature"`
	Fitness   float64 `json:"fitness"`
}

type evolveResult struct {
	Generations int                `json:"generations"`
	Candidates  []candidateSummary `json:"candidates"`
}

func newEvolveCmd() *cobra.Command {
	var (
		dataDir    string
		symbolFlag string
		venueFlag  string
		topN       int
		exportPath string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Evolve a population of strategy candidates against historical candles",
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

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Warn("interrupt received, finishing current generation then stopping")
				cancel()
			}()

			symbol := quote.Symbol{Ticker: symbolFlag, Venue: venueFlag}
			tfs := append([]quote.TimeFrame{cfg.Discovery.BaseTimeframe}, cfg.Discovery.AdditionalTimeframes...)

			loader := candleio.NewFileStore(logger, dataDir)
			frames, err := candleio.LoadAll(ctx, loader, symbol, tfs, time.Time{}, time.Time{})
			if err != nil {
				return fmt.Errorf("loading candles: %w", err)
			}

			reg := prometheus.NewRegistry()
			metrics := ga_metrics.NewRegistry(reg)
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					logger.Info("metrics listening", zap.String("addr", metricsAddr))
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Warn("metrics server stopped", zap.Error(err))
					}
				}()
				go func() {
					<-ctx.Done()
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			builder := discovery.NewBuilder(cfg.Discovery)
			manager := islands.NewManager(cfg.Islands, cfg.Genetic, cfg.Discovery, builder)
			eval := evaluator.NewEvaluator(logger, cfg.Evaluator, frames)
			driver := islands.NewDriver(logger, manager, eval, cfg.Genetic, metrics)

			rng := rand.New(rand.NewSource(1))

			generationsRun := 0
			final, err := driver.Run(ctx, rng, func(p islands.GenerationProgress) {
				generationsRun = p.Generation + 1
				logger.Info("generation complete",
					zap.Int("generation", p.Generation),
					zap.Float64("best", p.Best),
					zap.Float64("median", p.Median),
					zap.Float64("worst", p.Worst),
					zap.Bool("stagnated", p.Stagnated))
			})
			if err != nil {
				return fmt.Errorf("running evolution: %w", err)
			}

			if topN > len(final) {
				topN = len(final)
			}
			result := evolveResult{Generations: generationsRun}
			for i := 0; i < topN; i++ {
				ind := final[i]
				result.Candidates = append(result.Candidates, candidateSummary{
					Rank: i + 1, ID: ind.Candidate.ID, Signature: ind.Candidate.Signature, Fitness: ind.Fitness,
				})
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			if exportPath != "" {
				if err := os.WriteFile(exportPath, out, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", exportPath, err)
				}
				logger.Info("exported evolution result", zap.String("path", exportPath))
				return nil
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory of <ticker>_<timeframe>.json candle files")
	cmd.Flags().StringVar(&symbolFlag, "symbol", "", "ticker to evolve against")
	cmd.Flags().StringVar(&venueFlag, "venue", "", "venue qualifier for the symbol, if any")
	cmd.Flags().IntVar(&topN, "top", 10, "number of top-ranked candidates to print")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the ranked result as JSON to this path instead of stdout")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	cmd.MarkFlagRequired("symbol")

	return cmd
}
