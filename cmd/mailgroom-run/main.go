// Command mailgroom-run executes every enabled cleanup rule in a rule
// set against the authenticated Gmail account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebuckley/mailgroom/internal/engine"
	"github.com/ebuckley/mailgroom/internal/history"
	"github.com/ebuckley/mailgroom/internal/rate"
	"github.com/ebuckley/mailgroom/internal/rules"
	"github.com/ebuckley/mailgroom/internal/runtime"
)

type runConfig struct {
	cfgDir     string
	rulesPath  string
	historyDB  string
	dryRun     bool
	maxPerRule int
	rps        int
	batch      int
	workers    int
	saveRules  bool
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailgroom-run failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() runConfig {
	cfgDir := flag.String("config", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	rulesPath := flag.String("rules", "rules.json", "path to the rule set file")
	historyDB := flag.String("history", "", "path to the run-history SQLite database (optional)")
	dryRun := flag.Bool("dry-run", false, "compute matches without modifying the mailbox")
	maxPerRule := flag.Int("max-per-rule", 0, "cap on messages processed per rule (0 = rule defaults)")
	rps := flag.Int("rps", 4, "max requests per second")
	batch := flag.Int("batch", 100, "ids per batch-modify call (<=1000)")
	workers := flag.Int("workers", 4, "chunk worker pool width")
	saveRules := flag.Bool("save", false, "write updated run stats back to the rule set file")
	flag.Parse()

	return runConfig{
		cfgDir:     *cfgDir,
		rulesPath:  *rulesPath,
		historyDB:  *historyDB,
		dryRun:     *dryRun,
		maxPerRule: *maxPerRule,
		rps:        *rps,
		batch:      *batch,
		workers:    *workers,
		saveRules:  *saveRules,
	}
}

func run(cfg runConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.DefaultLogger()
	store, err := rules.Load(cfg.rulesPath, logger)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	client, err := runtime.NewGmailClient(ctx, cfg.cfgDir, neededScope(cfg, store))
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var limiter rate.Limiter
	if cfg.rps > 0 {
		bucket := rate.NewTokenBucket(cfg.rps)
		limiter = bucket
		defer bucket.Stop()
	}

	eng := engine.New(client, store, limiter, logger)
	eng.BatchSize = cfg.batch
	eng.Workers = cfg.workers

	results := eng.ProcessAll(ctx, engine.Options{
		DryRun:             cfg.dryRun,
		MaxMessagesPerRule: cfg.maxPerRule,
	})
	printSummary(results, cfg.dryRun)

	if cfg.historyDB != "" {
		hs, err := history.Open(cfg.historyDB)
		if err != nil {
			return fmt.Errorf("open history db: %w", err)
		}
		defer hs.Close()
		runID, err := hs.SaveRun(ctx, cfg.dryRun, results)
		if err != nil {
			return fmt.Errorf("save run history: %w", err)
		}
		logger.Info("saved run history", "run_id", runID, "db", cfg.historyDB)
	}

	if cfg.saveRules && !cfg.dryRun {
		if err := store.Save(cfg.rulesPath); err != nil {
			return fmt.Errorf("save rules: %w", err)
		}
	}
	return nil
}

// neededScope picks the narrowest OAuth scope the run can work with.
func neededScope(cfg runConfig, store *rules.Store) runtime.Scope {
	if cfg.dryRun {
		return runtime.ScopeReadonly
	}
	for _, r := range store.Enabled() {
		if r.Action.Type == rules.ActionPermanentDelete {
			return runtime.ScopeFull
		}
	}
	return runtime.ScopeModify
}

func printSummary(results []engine.Result, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	fmt.Printf("mailgroom run (%s): %d rules\n", mode, len(results))
	for _, res := range results {
		status := "ok"
		if res.Err != nil {
			status = "FAILED"
		}
		fmt.Printf("  %-30s %-7s matched %5d succeeded %5d failed %5d rate %5.1f%%\n",
			res.Rule.Name, status,
			res.Stats.TotalMessages,
			res.Stats.SuccessfulOperations,
			res.Stats.FailedOperations,
			res.Stats.SuccessRate(),
		)
		for _, e := range res.Outcome.Errors {
			fmt.Printf("    error: %s\n", e)
		}
	}
}
