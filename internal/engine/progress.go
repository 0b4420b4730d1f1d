package engine

import "log/slog"

// Reporter receives one statistics snapshot per completed rule.
// Callbacks are invoked on the engine's goroutine; implementations
// must not block for long.
type Reporter interface {
	RuleDone(ruleID string, stats ProcessingStats)
}

// LogReporter logs each snapshot through slog.
type LogReporter struct {
	Log *slog.Logger
}

func (r LogReporter) RuleDone(ruleID string, stats ProcessingStats) {
	r.Log.Info("rule processed",
		"rule", ruleID,
		"matched", stats.TotalMessages,
		"succeeded", stats.SuccessfulOperations,
		"failed", stats.FailedOperations,
		"success_rate", stats.SuccessRate(),
		"duration", stats.Duration(),
	)
}

// NopReporter discards snapshots.
type NopReporter struct{}

func (NopReporter) RuleDone(string, ProcessingStats) {}
