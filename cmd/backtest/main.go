// Command backtest is the one entry point spec.md §6 carves an
// exception for: instead of running until SIGINT/SIGTERM with no
// positional arguments, it takes a symbol list (or --compare to sweep
// spec.md §6's {1,3,5} timeframe set) and prints the scorecard the
// pipeline would otherwise only persist into Results.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"PerpMesh/internal/analyzer"
	"PerpMesh/internal/config"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/exchange/bybit"
	"PerpMesh/internal/logger"
)

// compareTimeframes is spec.md §6's sweep set for --compare.
var compareTimeframes = []string{"1", "3", "5"}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	var (
		timeframe string
		compare   bool
	)

	root := &cobra.Command{
		Use:   "backtest SYMBOL [SYMBOL...]",
		Short: "replay the entry engine over historical candles and print the resulting scorecard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, timeframe, compare)
		},
	}
	root.Flags().StringVar(&timeframe, "timeframe", "5", "single timeframe to backtest (ignored if --compare is set)")
	root.Flags().BoolVar(&compare, "compare", false, "sweep timeframes {1,3,5} per symbol instead of a single timeframe")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, symbols []string, timeframe string, compare bool) error {
	client := bybit.New(config.LoadCredentials())
	cfg := entryengine.ConfigFromTrading(config.LoadTrading())

	timeframes := []string{timeframe}
	if compare {
		timeframes = compareTimeframes
	}

	for _, sym := range symbols {
		for _, tf := range timeframes {
			result, err := analyzer.Analyze(ctx, client, cfg, sym, tf)
			if err != nil {
				return fmt.Errorf("analyze %s %s: %w", sym, tf, err)
			}
			fmt.Printf("%-12s tf=%-3s trades=%-4d win_rate=%6.2f%% total_pnl=%10.2f best_strategy=%s\n",
				sym, tf, result.TotalTrades, result.WinRate, result.TotalPnL, result.BestStrategy)
		}
	}
	return nil
}
