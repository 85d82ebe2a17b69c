// Command biosim runs the agricultural biotechnology ecosystem simulation.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/metrics"
	"github.com/talgya/biosim/internal/persistence"
	"github.com/talgya/biosim/internal/sim"
)

var (
	flagConfig   string
	flagScenario string
	flagSeed     int64
	flagDB       string
	flagLogLevel string
	flagRunID    string
	flagUntil    int
)

func main() {
	root := &cobra.Command{
		Use:   "biosim",
		Short: "Agent-based agricultural biotechnology ecosystem simulation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(flagLogLevel)
		},
	}
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagDB, "db", "data/biosim.db", "SQLite database path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation from a scenario or config file to completion",
		RunE:  runRun,
	}
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "YAML config file (overrides --scenario)")
	runCmd.Flags().StringVarP(&flagScenario, "scenario", "s", config.ScenarioBaseline, "scenario preset")
	runCmd.Flags().Int64Var(&flagSeed, "seed", 0, "override the config's random seed")

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a persisted run",
		RunE:  runResume,
	}
	resumeCmd.Flags().StringVarP(&flagRunID, "run", "r", "", "run id to resume")
	resumeCmd.Flags().IntVar(&flagUntil, "until", 0, "stop after this year instead of the configured end")
	resumeCmd.MarkFlagRequired("run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted runs",
		RunE:  runList,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the snapshot series of a persisted run",
		RunE:  runInspect,
	}
	inspectCmd.Flags().StringVarP(&flagRunID, "run", "r", "", "run id to inspect")
	inspectCmd.MarkFlagRequired("run")

	root.AddCommand(runCmd, resumeCmd, listCmd, inspectCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
}

func openDB() (*persistence.DB, error) {
	if dir := filepath.Dir(flagDB); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return persistence.Open(flagDB)
}

func runRun(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.ForScenario(flagScenario)
	}
	if err != nil {
		return err
	}
	if flagSeed != 0 {
		cfg.Seed = flagSeed
	}

	engine, err := sim.New(cfg)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runID := persistence.NewRunID()
	slog.Info("run started", "run", runID, "scenario", cfg.Scenario, "seed", cfg.Seed)

	snaps, runErr := engine.Run()

	// Persist whatever was produced, halted or not.
	if err := db.SaveRun(runID, engine.State()); err != nil {
		slog.Error("save failed", "run", runID, "error", err)
	}
	if runErr != nil {
		return runErr
	}

	printSummary(cmd, runID, cfg, snaps)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	state, err := db.LoadRun(flagRunID)
	if err != nil {
		return err
	}

	engine, err := sim.Restore(state)
	if err != nil {
		return err
	}
	slog.Info("run resumed", "run", flagRunID, "step", engine.CurrentStep())

	var snaps []metrics.Snapshot
	var runErr error
	if flagUntil > 0 {
		snaps, runErr = engine.RunUntil(flagUntil)
	} else {
		snaps, runErr = engine.Run()
	}

	if err := db.SaveRun(flagRunID, engine.State()); err != nil {
		slog.Error("save failed", "run", flagRunID, "error", err)
	}
	if runErr != nil && !errors.Is(runErr, sim.ErrCompleted) {
		return runErr
	}

	printSummary(cmd, flagRunID, engine.Config(), snaps)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("no runs")
		return nil
	}
	for _, r := range runs {
		cmd.Printf("%s  %-28s seed=%-6d %d-%d  %-10s step=%d\n",
			r.ID, r.Scenario, r.Seed, r.StartYear, r.EndYear, r.Phase, r.LastStep)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	snaps, err := db.Snapshots(flagRunID)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return fmt.Errorf("no snapshots for run %s", flagRunID)
	}

	cmd.Printf("%-6s %-6s %-10s %-10s %-8s %-8s %s\n",
		"step", "year", "products", "invested", "sales", "events", "skipped")
	for _, s := range snaps {
		cmd.Printf("%-6d %-6d %-10d $%-9s %-8s %-8d %d\n",
			s.Step, s.Year, s.TotalProducts(),
			humanize.SIWithDigits(s.CumulativeInvestment*1e6, 1, ""),
			humanize.SIWithDigits(s.CumulativeSales, 1, ""),
			s.EventsApplied, s.SkippedActions)
	}
	return nil
}

func printSummary(cmd *cobra.Command, runID string, cfg config.Config, snaps []metrics.Snapshot) {
	if len(snaps) == 0 {
		return
	}
	last := snaps[len(snaps)-1]

	cmd.Printf("\nRun %s (%s) complete: %d–%d, %d steps.\n",
		runID, cfg.Scenario, cfg.StartYear, last.Year, len(snaps))
	cmd.Printf("Products on market: %d across %d regions.\n",
		last.TotalProducts(), len(last.ProductsByRegion))
	cmd.Printf("Cumulative investment: $%s; units sold: %s.\n",
		humanize.SIWithDigits(last.CumulativeInvestment*1e6, 2, ""),
		humanize.SIWithDigits(last.CumulativeSales, 2, ""))
	for kind, c := range last.AgentsByKind {
		cmd.Printf("  %-20s active=%d exited=%d\n", kind, c.Active, c.Exited)
	}
}
