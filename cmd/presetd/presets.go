package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/newthinker/presetd/internal/config"
	"github.com/newthinker/presetd/internal/lifecycle"
	"github.com/newthinker/presetd/internal/logger"
	"github.com/newthinker/presetd/internal/naming"
	"github.com/newthinker/presetd/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Preset storage operations",
	Long:  `Commands for inspecting presets and their drafts in the configured storage.`,
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user-visible presets of a namespace",
	RunE:  runPresetsList,
}

var presetsDraftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "List autosave drafts of a namespace",
	RunE:  runPresetsDrafts,
}

var presetsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete orphaned drafts once",
	RunE:  runPresetsSweep,
}

var (
	presetPath      string
	sweepNamespaces []string
)

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsDraftsCmd)
	presetsCmd.AddCommand(presetsSweepCmd)

	for _, c := range []*cobra.Command{presetsListCmd, presetsDraftsCmd} {
		c.Flags().StringVar(&presetPath, "path", "", "preset namespace (required)")
		c.MarkFlagRequired("path")
	}
	presetsSweepCmd.Flags().StringSliceVar(&sweepNamespaces, "path", nil, "namespaces to sweep (default: configured or all)")
}

// withStore handles common storage setup and teardown.
func withStore(fn func(ctx context.Context, cfg *config.Config, st store.Store, log *zap.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStore()

	return fn(ctx, cfg, st, log)
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, _ *config.Config, st store.Store, log *zap.Logger) error {
		names, err := st.List(ctx, presetPath)
		if err != nil {
			return fmt.Errorf("listing presets: %w", err)
		}

		visible := naming.Visible(names)
		out := cmd.OutOrStdout()
		if len(visible) == 0 {
			fmt.Fprintln(out, "No presets found.")
			return nil
		}
		for _, name := range visible {
			fmt.Fprintln(out, name)
		}
		log.Debug("presets listed", zap.String("path", presetPath), zap.Int("count", len(visible)))
		return nil
	})
}

func runPresetsDrafts(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, _ *config.Config, st store.Store, log *zap.Logger) error {
		names, err := st.List(ctx, presetPath)
		if err != nil {
			return fmt.Errorf("listing presets: %w", err)
		}

		bases := make(map[string]bool)
		var drafts []string
		for _, name := range names {
			if naming.IsDraft(name) {
				drafts = append(drafts, name)
			} else {
				bases[name] = true
			}
		}

		out := cmd.OutOrStdout()
		if len(drafts) == 0 {
			fmt.Fprintln(out, "No drafts found.")
			return nil
		}
		sort.SliceStable(drafts, func(i, j int) bool {
			bi, bj := naming.BaseOf(drafts[i]), naming.BaseOf(drafts[j])
			if bi != bj {
				return bi < bj
			}
			vi, _ := naming.Version(drafts[i])
			vj, _ := naming.Version(drafts[j])
			return vi < vj
		})

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DRAFT\tBASE\tVERSION\tBASE SAVED\t")
		fmt.Fprintln(w, "-----\t----\t-------\t----------\t")
		for _, d := range drafts {
			v, _ := naming.Version(d)
			base := naming.BaseOf(d)
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t\n", d, base, v, bases[base])
		}
		w.Flush()

		log.Debug("drafts listed", zap.String("path", presetPath), zap.Int("count", len(drafts)))
		return nil
	})
}

func runPresetsSweep(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, log *zap.Logger) error {
		namespaces := sweepNamespaces
		if len(namespaces) == 0 {
			namespaces = cfg.Sweeper.Namespaces
		}

		// No sessions live in this process, so every orphan is fair game.
		sweeper := lifecycle.NewSweeper(st, nil, lifecycle.SweeperOptions{
			Namespaces:  namespaces,
			Concurrency: cfg.Lifecycle.PurgeConcurrency,
			Logger:      log,
		})
		n, err := sweeper.Sweep(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d orphaned drafts.\n", n)
		return err
	})
}
