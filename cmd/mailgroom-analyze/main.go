// Command mailgroom-analyze samples the mailbox and prints aggregate
// statistics plus suggested cleanup rules.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebuckley/mailgroom/internal/analyze"
	"github.com/ebuckley/mailgroom/internal/rate"
	"github.com/ebuckley/mailgroom/internal/runtime"
)

type analyzeConfig struct {
	cfgDir  string
	max     int
	top     int
	rps     int
	jsonOut string
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailgroom-analyze failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() analyzeConfig {
	cfgDir := flag.String("config", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	maxMessages := flag.Int("max", 1000, "messages to sample")
	top := flag.Int("top", 20, "sender domains to report")
	rps := flag.Int("rps", 4, "max requests per second")
	jsonOut := flag.String("json", "", "write JSON report to path")
	flag.Parse()

	return analyzeConfig{
		cfgDir:  *cfgDir,
		max:     *maxMessages,
		top:     *top,
		rps:     *rps,
		jsonOut: *jsonOut,
	}
}

func run(cfg analyzeConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.DefaultLogger()
	client, err := runtime.NewGmailClient(ctx, cfg.cfgDir, runtime.ScopeReadonly)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var limiter rate.Limiter
	if cfg.rps > 0 {
		bucket := rate.NewTokenBucket(cfg.rps)
		limiter = bucket
		defer bucket.Stop()
	}

	analyzer := analyze.New(client, limiter, logger)
	analyzer.TopN = cfg.top
	rep, err := analyzer.Analyze(ctx, cfg.max)
	if err != nil {
		return fmt.Errorf("analyze mailbox: %w", err)
	}

	printReport(rep)
	if cfg.jsonOut == "" {
		return nil
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(cfg.jsonOut, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func printReport(rep analyze.Report) {
	fmt.Printf("mailgroom analysis: %d messages sampled\n", rep.TotalMessages)
	fmt.Printf("  unread: %d   older than 1 year: %d   unique sender domains: %d\n",
		rep.UnreadMessages, rep.OldMessages, rep.UniqueSenders)
	if len(rep.TopDomains) > 0 {
		fmt.Println("\nTop sender domains:")
		for _, dc := range rep.TopDomains {
			marker := ""
			if dc.Notifier {
				marker = " (automated)"
			}
			fmt.Printf("  %-40s %5d%s\n", dc.Domain, dc.Count, marker)
		}
	}
	if len(rep.Suggestions) > 0 {
		fmt.Println("\nSuggested rules:")
		for _, sug := range rep.Suggestions {
			fmt.Printf("  [%s] %s\n      %s\n", sug.Kind, sug.Title, sug.Description)
		}
	}
}
