package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/newthinker/presetd/internal/backtest"
	"github.com/newthinker/presetd/internal/config"
	"github.com/newthinker/presetd/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestPath     string
	backtestPreset   string
	backtestStrategy string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run backtest on a stored preset",
	Long:  "Load a preset and run its parameter values through the configured backtest engine",
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestPath, "path", "", "preset namespace (required)")
	backtestCmd.Flags().StringVar(&backtestPreset, "preset", "", "preset or draft name (required)")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "strategy path passed to the engine (default: --path)")

	backtestCmd.MarkFlagRequired("path")
	backtestCmd.MarkFlagRequired("preset")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, log *zap.Logger) error {
		if cfg.Backtest.URL == "" {
			return fmt.Errorf("backtest.url is not configured")
		}
		strategy := backtestStrategy
		if strategy == "" {
			strategy = backtestPath
		}

		ps, err := st.Load(ctx, backtestPath, backtestPreset)
		if err != nil {
			return fmt.Errorf("loading preset: %w", err)
		}

		client := backtest.NewClient(cfg.Backtest.URL, cfg.Backtest.Timeout)
		result, err := client.Run(ctx, strategy, ps.Values())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== presetd Backtest ===")
		fmt.Fprintf(out, "Strategy: %s\n", strategy)
		fmt.Fprintf(out, "Preset:   %s/%s\n", backtestPath, backtestPreset)
		fmt.Fprintf(out, "Duration: %s\n", result.Duration)
		fmt.Fprintln(out)

		s := result.Stats
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Trades\t%d\t\n", s.TotalTrades)
		fmt.Fprintf(w, "Winning\t%d\t\n", s.WinningTrades)
		fmt.Fprintf(w, "Losing\t%d\t\n", s.LosingTrades)
		fmt.Fprintf(w, "Win rate\t%.2f%%\t\n", s.WinRate)
		fmt.Fprintf(w, "Total return\t%.2f%%\t\n", s.TotalReturn)
		fmt.Fprintf(w, "Max drawdown\t%.2f%%\t\n", s.MaxDrawdown)
		fmt.Fprintf(w, "Sharpe\t%.2f\t\n", s.SharpeRatio)
		w.Flush()

		log.Info("backtest finished",
			zap.String("strategy", strategy),
			zap.Int("trades", s.TotalTrades),
		)
		return nil
	})
}
